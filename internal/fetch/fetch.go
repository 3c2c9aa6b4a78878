// Package fetch downloads bootstrap artifacts (runtime tarballs,
// checksum files) with a worker pool and a progress bar.
package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
	"github.com/uploadworks/upload-bootstrap/internal/utils/network"
)

// Client is swappable so tests can point downloads at an httptest server
// transport or stub.
var Client *http.Client = network.NewSecureHTTPClient()

// FetchFiles downloads the given URLs into destDir using a pool of workers.
// It shows a single progress bar tracking files completed vs total and
// returns the first error encountered, after all workers drain.
func FetchFiles(urls []string, destDir string, workers int) error {
	log := logger.Logger()

	total := len(urls)
	if total == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string, total)
	errs := make(chan error, total)
	var wg sync.WaitGroup

	// a single progress bar for total files
	bar := progressbar.NewOptions(total,
		progressbar.OptionFullWidth(),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				name := path.Base(url)
				bar.Describe(fmt.Sprintf("downloading %s", name))

				if err := fetchOne(url, filepath.Join(destDir, name)); err != nil {
					log.Errorf("downloading %s failed: %v", url, err)
					errs <- fmt.Errorf("downloading %s: %w", url, err)
				}
				bar.Add(1)
			}
		}()
	}

	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	wg.Wait()
	bar.Finish()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// FetchFile downloads a single URL to destPath.
func FetchFile(url, destPath string) error {
	return fetchOne(url, destPath)
}

func fetchOne(url, destPath string) error {
	resp, err := Client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	return nil
}

// VerifySHA256 compares the file's digest against the expected hex string.
func VerifySHA256(path string, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}

	// Manifests may carry the digest in either case.
	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", path, actual, expected)
	}
	return nil
}
