package installer

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/uploadworks/upload-bootstrap/internal/config"
	"github.com/uploadworks/upload-bootstrap/internal/fetch"
	"github.com/uploadworks/upload-bootstrap/internal/pkgresolve"
	"github.com/uploadworks/upload-bootstrap/internal/report"
	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
	"github.com/uploadworks/upload-bootstrap/internal/utils/shell"
)

func useMock(t *testing.T, commands []shell.MockCommand) *shell.MockExecutor {
	t.Helper()
	originalExecutor := shell.Default
	t.Cleanup(func() { shell.Default = originalExecutor })

	mock := shell.NewMockExecutor(commands)
	shell.Default = mock
	return mock
}

func newInstaller(env sysenv.Descriptor) *Installer {
	return New(env, config.Default(), report.New())
}

func TestSplitResolutions(t *testing.T) {
	resolutions := []pkgresolve.Resolution{
		{Tag: pkgresolve.TagFFmpeg, Packages: []string{"ffmpeg"}},
		{Tag: pkgresolve.TagChromium, NoMapping: true},
		{Tag: pkgresolve.TagNodeJS, Packages: []string{"nodejs", "npm"}},
	}

	packages, unresolved := SplitResolutions(resolutions)
	if strings.Join(packages, " ") != "ffmpeg nodejs npm" {
		t.Errorf("packages = %v", packages)
	}
	if len(unresolved) != 1 || unresolved[0] != pkgresolve.TagChromium {
		t.Errorf("unresolved = %v", unresolved)
	}
}

func TestSplitResolutionsDedups(t *testing.T) {
	resolutions := []pkgresolve.Resolution{
		{Tag: pkgresolve.TagPython3, Packages: []string{"python3", "python3-pip"}},
		{Tag: pkgresolve.Tag("python3-pip"), Packages: []string{"python3-pip"}},
	}

	packages, _ := SplitResolutions(resolutions)
	if strings.Join(packages, " ") != "python3 python3-pip" {
		t.Errorf("packages = %v", packages)
	}
}

func TestInstallPackagesApt(t *testing.T) {
	mock := useMock(t, []shell.MockCommand{
		{Pattern: "apt-get update", Output: "updated"},
		{Pattern: "apt-get install -y", Output: "installed"},
	})

	inst := newInstaller(sysenv.Descriptor{
		OS: sysenv.OSLinux, Distro: sysenv.DistroUbuntu, PackageManager: sysenv.PMApt,
	})

	if err := inst.InstallPackages([]string{"ffmpeg", "aria2"}); err != nil {
		t.Fatalf("InstallPackages failed: %v", err)
	}

	found := false
	for _, call := range mock.Calls {
		if call == "apt-get install -y ffmpeg aria2" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected install command with joined package list, calls: %v", mock.Calls)
	}
}

func TestInstallPackagesAptUpdateFailureIsNonFatal(t *testing.T) {
	useMock(t, []shell.MockCommand{
		{Pattern: "apt-get update", Error: fmt.Errorf("mirror down")},
		{Pattern: "apt-get install -y", Output: "installed"},
	})

	inst := newInstaller(sysenv.Descriptor{
		OS: sysenv.OSLinux, Distro: sysenv.DistroDebian, PackageManager: sysenv.PMApt,
	})

	if err := inst.InstallPackages([]string{"ffmpeg"}); err != nil {
		t.Fatalf("Expected update failure to be tolerated, got: %v", err)
	}
}

func TestInstallPackagesPerManager(t *testing.T) {
	tests := []struct {
		pm   sysenv.PackageManager
		want string
	}{
		{sysenv.PMDnf, "dnf install -y chromium"},
		{sysenv.PMYum, "yum install -y chromium"},
		{sysenv.PMPacman, "pacman -Sy --noconfirm chromium"},
	}

	for _, tt := range tests {
		t.Run(string(tt.pm), func(t *testing.T) {
			mock := useMock(t, []shell.MockCommand{
				{Pattern: "install", Output: "ok"},
				{Pattern: "pacman -Sy --noconfirm", Output: "ok"},
			})

			inst := newInstaller(sysenv.Descriptor{
				OS: sysenv.OSLinux, Distro: sysenv.DistroFedora, PackageManager: tt.pm,
			})
			if err := inst.InstallPackages([]string{"chromium"}); err != nil {
				t.Fatalf("InstallPackages failed: %v", err)
			}
			if len(mock.Calls) != 1 || mock.Calls[0] != tt.want {
				t.Errorf("Calls = %v, want [%s]", mock.Calls, tt.want)
			}
		})
	}
}

func TestInstallPackagesUnknownManager(t *testing.T) {
	useMock(t, nil)

	inst := newInstaller(sysenv.Descriptor{
		OS: sysenv.OSLinux, Distro: sysenv.DistroUnknown, PackageManager: sysenv.PMUnknown,
	})

	err := inst.InstallPackages([]string{"ffmpeg"})
	if err == nil {
		t.Fatal("Expected error for unknown package manager")
	}
	if !strings.Contains(err.Error(), "install manually") {
		t.Errorf("Expected manual-install message, got: %v", err)
	}
	if !inst.Report.Failed() {
		t.Error("Expected failed step in report")
	}
}

func TestInstallPackagesEmptyListIsNoop(t *testing.T) {
	mock := useMock(t, nil)

	inst := newInstaller(sysenv.Descriptor{PackageManager: sysenv.PMApt})
	if err := inst.InstallPackages(nil); err != nil {
		t.Fatalf("Expected no-op, got: %v", err)
	}
	if len(mock.Calls) != 0 {
		t.Errorf("Expected no commands, got %v", mock.Calls)
	}
}

func TestSetupVirtualenv(t *testing.T) {
	dir := t.TempDir()
	requirements := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(requirements, []byte("requests\n"), 0644); err != nil {
		t.Fatalf("writing requirements: %v", err)
	}

	mock := useMock(t, []shell.MockCommand{
		{Pattern: "command -v python3", Output: "/usr/bin/python3"},
		{Pattern: "-m venv", Output: ""},
		{Pattern: "pip install -r", Output: "installed"},
	})

	manifest := config.Default()
	manifest.Venv.Dir = filepath.Join(dir, ".venv")
	manifest.Venv.Requirements = requirements

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux}, manifest, report.New())
	if err := inst.SetupVirtualenv(); err != nil {
		t.Fatalf("SetupVirtualenv failed: %v", err)
	}

	joined := strings.Join(mock.Calls, "\n")
	if !strings.Contains(joined, "python3 -m venv "+manifest.Venv.Dir) {
		t.Errorf("Expected venv creation, calls:\n%s", joined)
	}
	if !strings.Contains(joined, filepath.Join(manifest.Venv.Dir, "bin", "pip")+" install -r "+requirements) {
		t.Errorf("Expected pip install inside venv, calls:\n%s", joined)
	}
}

func TestSetupVirtualenvFallsBackToPython(t *testing.T) {
	mock := useMock(t, []shell.MockCommand{
		{Pattern: "command -v python3", Output: ""},
		{Pattern: "command -v python", Output: "/usr/bin/python"},
		{Pattern: "-m venv", Output: ""},
	})

	manifest := config.Default()
	manifest.Venv.Requirements = ""

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux, Distro: sysenv.DistroArch}, manifest, nil)
	if err := inst.SetupVirtualenv(); err != nil {
		t.Fatalf("SetupVirtualenv failed: %v", err)
	}

	joined := strings.Join(mock.Calls, "\n")
	if !strings.Contains(joined, "python -m venv") {
		t.Errorf("Expected plain python fallback, calls:\n%s", joined)
	}
}

func TestSetupVirtualenvNoInterpreter(t *testing.T) {
	useMock(t, nil)

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux}, config.Default(), nil)
	if err := inst.SetupVirtualenv(); err == nil {
		t.Fatal("Expected error without python on PATH")
	}
}

func TestInstallNpmPackages(t *testing.T) {
	mock := useMock(t, []shell.MockCommand{
		{Pattern: "command -v npm", Output: "/usr/bin/npm"},
		{Pattern: "npm install", Output: "added 12 packages"},
	})

	manifest := config.Default()
	manifest.Node.Packages = []string{"playwright", "puppeteer"}

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux}, manifest, report.New())
	if err := inst.InstallNpmPackages(); err != nil {
		t.Fatalf("InstallNpmPackages failed: %v", err)
	}

	joined := strings.Join(mock.Calls, "\n")
	if !strings.Contains(joined, "npm install playwright puppeteer") {
		t.Errorf("Expected npm install with package list, calls:\n%s", joined)
	}
}

func TestInstallNpmPackagesMissingNpm(t *testing.T) {
	useMock(t, nil)

	manifest := config.Default()
	manifest.Node.Packages = []string{"playwright"}

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux}, manifest, nil)
	if err := inst.InstallNpmPackages(); err == nil {
		t.Fatal("Expected error without npm on PATH")
	}
}

func TestEnsureNodeRuntimeAlreadyInstalled(t *testing.T) {
	mock := useMock(t, []shell.MockCommand{
		{Pattern: "command -v node", Output: "/usr/bin/node"},
	})

	inst := newInstaller(sysenv.Descriptor{OS: sysenv.OSLinux})
	if err := inst.EnsureNodeRuntime(); err != nil {
		t.Fatalf("EnsureNodeRuntime failed: %v", err)
	}
	if len(mock.Calls) != 1 {
		t.Errorf("Expected only the existence check, got %v", mock.Calls)
	}
}

// buildNodeArchive packs one file into a tarball compressed to match the
// artifact name's extension.
func buildNodeArchive(t *testing.T, artifact string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	if strings.HasSuffix(artifact, ".tar.xz") {
		xzw, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatalf("creating xz writer: %v", err)
		}
		w = xzw
	} else {
		w = gzip.NewWriter(&buf)
	}

	tw := tar.NewWriter(w)
	content := []byte("#!node")
	hdr := &tar.Header{Name: "node/bin/node", Mode: 0755, Size: int64(len(content)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("writing tar header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("writing tar content: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}
	return buf.Bytes()
}

func pointNodeDistAt(t *testing.T, server *httptest.Server) {
	t.Helper()
	origBase := NodeDistBaseURL
	origClient := fetch.Client
	t.Cleanup(func() {
		NodeDistBaseURL = origBase
		fetch.Client = origClient
	})
	NodeDistBaseURL = server.URL
	fetch.Client = server.Client()
}

func TestEnsureNodeRuntimeTarballFallback(t *testing.T) {
	manifest := config.Default()
	manifest.ToolsDir = t.TempDir()

	artifact, err := nodeArtifactName(manifest.Node.Version, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skipf("no tarball fallback on this platform: %v", err)
	}
	tarball := buildNodeArchive(t, artifact)
	sum := sha256.Sum256(tarball)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v" + manifest.Node.Version + "/" + artifact:
			w.Write(tarball)
		case "/v" + manifest.Node.Version + "/SHASUMS256.txt":
			fmt.Fprintf(w, "%s  %s\n", hex.EncodeToString(sum[:]), artifact)
			fmt.Fprintf(w, "%s  some-other-file.tar.gz\n", strings.Repeat("0", 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	pointNodeDistAt(t, server)

	useMock(t, []shell.MockCommand{
		{Pattern: "command -v node", Output: ""},
	})

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux}, manifest, report.New())
	if err := inst.EnsureNodeRuntime(); err != nil {
		t.Fatalf("EnsureNodeRuntime failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(manifest.ToolsDir, "node", "bin", "node")); err != nil {
		t.Errorf("expected extracted runtime: %v", err)
	}
	if _, err := os.Stat(filepath.Join(manifest.ToolsDir, artifact)); !os.IsNotExist(err) {
		t.Error("expected tarball to be removed after extraction")
	}
	if _, err := os.Stat(filepath.Join(manifest.ToolsDir, "SHASUMS256.txt")); !os.IsNotExist(err) {
		t.Error("expected checksums file to be removed")
	}
	if inst.Report.Failed() {
		t.Error("expected no failed report steps")
	}
}

func TestEnsureNodeRuntimePinnedChecksumMismatch(t *testing.T) {
	manifest := config.Default()
	manifest.ToolsDir = t.TempDir()
	manifest.Node.Checksum = strings.Repeat("0", 64)

	artifact, err := nodeArtifactName(manifest.Node.Version, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skipf("no tarball fallback on this platform: %v", err)
	}
	tarball := buildNodeArchive(t, artifact)

	var sumsRequested bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "SHASUMS256.txt") {
			sumsRequested = true
		}
		w.Write(tarball)
	}))
	defer server.Close()
	pointNodeDistAt(t, server)

	useMock(t, []shell.MockCommand{
		{Pattern: "command -v node", Output: ""},
	})

	inst := New(sysenv.Descriptor{OS: sysenv.OSLinux}, manifest, report.New())
	if err := inst.EnsureNodeRuntime(); err == nil {
		t.Fatal("Expected checksum mismatch error")
	}
	if sumsRequested {
		t.Error("pinned checksum must skip the checksums file download")
	}
	if !inst.Report.Failed() {
		t.Error("Expected failed step in report")
	}
}

func TestChecksumFor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SHASUMS256.txt")
	content := strings.Repeat("a", 64) + "  node-v20.11.1-linux-x64.tar.xz\n" +
		strings.Repeat("b", 64) + "  node-v20.11.1-darwin-arm64.tar.gz\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	sum, err := checksumFor(path, "node-v20.11.1-darwin-arm64.tar.gz")
	if err != nil {
		t.Fatalf("checksumFor failed: %v", err)
	}
	if sum != strings.Repeat("b", 64) {
		t.Errorf("sum = %s", sum)
	}

	if _, err := checksumFor(path, "node-v99-plan9-mips.tar.gz"); err == nil {
		t.Fatal("Expected error for missing entry")
	}
}

func TestNodeArtifactName(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"linux", "amd64", "node-v20.11.1-linux-x64.tar.xz", false},
		{"linux", "arm64", "node-v20.11.1-linux-arm64.tar.xz", false},
		{"darwin", "arm64", "node-v20.11.1-darwin-arm64.tar.gz", false},
		{"windows", "amd64", "", true},
		{"linux", "riscv64", "", true},
	}

	for _, tt := range tests {
		got, err := nodeArtifactName("20.11.1", tt.goos, tt.goarch)
		if tt.wantErr {
			if err == nil {
				t.Errorf("nodeArtifactName(%s/%s): expected error", tt.goos, tt.goarch)
			}
			continue
		}
		if err != nil {
			t.Errorf("nodeArtifactName(%s/%s) failed: %v", tt.goos, tt.goarch, err)
			continue
		}
		if got != tt.want {
			t.Errorf("nodeArtifactName(%s/%s) = %s, want %s", tt.goos, tt.goarch, got, tt.want)
		}
	}
}
