package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/uploadworks/upload-bootstrap/internal/extract"
	"github.com/uploadworks/upload-bootstrap/internal/fetch"
	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
	"github.com/uploadworks/upload-bootstrap/internal/utils/shell"
)

// NodeDistBaseURL is the download root for official Node tarballs,
// swappable for tests.
var NodeDistBaseURL = "https://nodejs.org/dist"

// nodeChecksumsFile is published next to each release's tarballs.
const nodeChecksumsFile = "SHASUMS256.txt"

// EnsureNodeRuntime makes a Node runtime available. The distro package
// from the resolver is preferred; when no package manager exists (or the
// package did not provide node), an official tarball is unpacked into
// the tools dir. The tarball is verified against the manifest's pinned
// checksum, or against the release's published checksums file when the
// manifest pins none.
func (i *Installer) EnsureNodeRuntime() error {
	log := logger.Logger()

	if exists, _ := shell.IsCommandExist("node"); exists {
		log.Infof("Node runtime already present")
		i.record("node runtime", "already installed", true)
		return nil
	}

	version := i.Manifest.Node.Version
	artifact, err := nodeArtifactName(version, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		i.record("node runtime", "", false)
		return err
	}

	urls := []string{fmt.Sprintf("%s/v%s/%s", NodeDistBaseURL, version, artifact)}
	sum := i.Manifest.Node.Checksum
	if sum == "" {
		urls = append(urls, fmt.Sprintf("%s/v%s/%s", NodeDistBaseURL, version, nodeChecksumsFile))
	}

	log.Infof("Downloading Node %s from %s", version, urls[0])
	if err := fetch.FetchFiles(urls, i.Manifest.ToolsDir, len(urls)); err != nil {
		i.record("node runtime", urls[0], false)
		return fmt.Errorf("failed to download Node runtime: %w", err)
	}

	archivePath := filepath.Join(i.Manifest.ToolsDir, artifact)
	defer os.Remove(archivePath)

	if sum == "" {
		sumsPath := filepath.Join(i.Manifest.ToolsDir, nodeChecksumsFile)
		defer os.Remove(sumsPath)
		sum, err = checksumFor(sumsPath, artifact)
		if err != nil {
			i.record("node runtime", "checksum lookup failed", false)
			return err
		}
	}

	if err := fetch.VerifySHA256(archivePath, sum); err != nil {
		i.record("node runtime", "checksum mismatch", false)
		return err
	}

	if err := extract.ExtractArchive(archivePath, i.Manifest.ToolsDir); err != nil {
		i.record("node runtime", archivePath, false)
		return fmt.Errorf("failed to extract Node runtime: %w", err)
	}

	log.Infof("Node %s unpacked into %s (add its bin directory to PATH)", version, i.Manifest.ToolsDir)
	i.record("node runtime", fmt.Sprintf("tarball v%s into %s", version, i.Manifest.ToolsDir), true)
	return nil
}

// checksumFor looks name up in a "digest  filename" checksums file.
func checksumFor(path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading checksums file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == name {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("no checksum entry for %s in %s", name, path)
}

// nodeArtifactName maps version and platform to the official tarball
// name, e.g. node-v20.11.1-linux-x64.tar.xz.
func nodeArtifactName(version, goos, goarch string) (string, error) {
	var platform, ext string

	switch goos {
	case "linux":
		platform = "linux"
		ext = "tar.xz"
	case "darwin":
		platform = "darwin"
		ext = "tar.gz"
	default:
		return "", fmt.Errorf("no Node tarball fallback for OS %s", goos)
	}

	var arch string
	switch goarch {
	case "amd64":
		arch = "x64"
	case "arm64":
		arch = "arm64"
	default:
		return "", fmt.Errorf("no Node tarball fallback for architecture %s", goarch)
	}

	return fmt.Sprintf("node-v%s-%s-%s.%s", version, platform, arch, ext), nil
}
