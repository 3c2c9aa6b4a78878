// Package sysenv classifies the host into an (OS, distribution,
// package manager) descriptor used to drive the bootstrap steps.
package sysenv

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
)

// OS is the operating system family of the host.
type OS string

const (
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
	OSUnknown OS = "unknown"
)

// Distro is the Linux distribution family. Meaningful only when OS is linux.
type Distro string

const (
	DistroUbuntu  Distro = "ubuntu"
	DistroDebian  Distro = "debian"
	DistroFedora  Distro = "fedora"
	DistroCentos  Distro = "centos"
	DistroArch    Distro = "arch"
	DistroUnknown Distro = "unknown"
)

// PackageManager is the distro-specific installation tool.
type PackageManager string

const (
	PMApt     PackageManager = "apt"
	PMDnf     PackageManager = "dnf"
	PMYum     PackageManager = "yum"
	PMPacman  PackageManager = "pacman"
	PMUnknown PackageManager = "unknown"
)

// Descriptor is the immutable classification of the running host.
// Distro and PackageManager are unknown-paired: one is unknown exactly
// when the other is.
type Descriptor struct {
	OS             OS             `json:"os"`
	Distro         Distro         `json:"distro"`
	PackageManager PackageManager `json:"packageManager"`
}

// Detection inputs, package-level so tests can point them at fixtures.
var (
	OsReleaseFile     = "/etc/os-release"
	DebianVersionFile = "/etc/debian_version"
	RedhatReleaseFile = "/etc/redhat-release"
	ArchReleaseFile   = "/etc/arch-release"

	// OSFamily yields the OS-family identifier string the prefix table
	// matches against.
	OSFamily = defaultOSFamily

	// LookPath resolves a binary name on the executable search path.
	LookPath = exec.LookPath
)

// defaultOSFamily prefers the shell's $OSTYPE (e.g. "linux-gnu",
// "darwin21", "msys") and falls back to runtime.GOOS translated into the
// same vocabulary.
func defaultOSFamily() string {
	if v := os.Getenv("OSTYPE"); v != "" {
		return v
	}
	switch runtime.GOOS {
	case "linux":
		return "linux-gnu"
	case "darwin":
		return "darwin"
	case "windows":
		return "msys"
	default:
		return runtime.GOOS
	}
}

// Classify inspects the host and returns its descriptor. It is a pure
// function of system state and never fails; in the worst case every
// field is unknown.
func Classify() Descriptor {
	log := logger.Logger()

	desc := Descriptor{
		OS:             classifyOS(OSFamily()),
		Distro:         DistroUnknown,
		PackageManager: PMUnknown,
	}

	if desc.OS == OSLinux {
		desc.Distro, desc.PackageManager = classifyDistro()
	}

	if desc.OS == OSUnknown {
		log.Warnf("Could not determine host operating system")
	} else if desc.OS == OSLinux && desc.Distro == DistroUnknown {
		log.Warnf("Could not determine Linux distribution")
	}

	log.Debugf("Classified host: os=%s distro=%s packageManager=%s",
		desc.OS, desc.Distro, desc.PackageManager)

	return desc
}

func classifyOS(family string) OS {
	family = strings.ToLower(family)
	switch {
	case strings.HasPrefix(family, "linux"):
		return OSLinux
	case strings.HasPrefix(family, "darwin"):
		return OSMacOS
	case strings.HasPrefix(family, "msys"), strings.HasPrefix(family, "cygwin"):
		return OSWindows
	default:
		return OSUnknown
	}
}

// classifyDistro resolves the distribution, trying /etc/os-release first
// and then the marker-file chain.
func classifyDistro() (Distro, PackageManager) {
	if release, err := parseOsRelease(OsReleaseFile); err == nil {
		if distro, pm, ok := distroForID(release["ID"]); ok {
			return distro, pm
		}
		if distro, pm, ok := distroForIDLike(release["ID_LIKE"]); ok {
			return distro, pm
		}
	}
	return classifyFromMarkers()
}

// distroForID maps an os-release ID to a (distro, package manager) pair.
func distroForID(id string) (Distro, PackageManager, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	switch {
	case id == "ubuntu":
		return DistroUbuntu, PMApt, true
	case id == "debian":
		return DistroDebian, PMApt, true
	case id == "fedora":
		return DistroFedora, PMDnf, true
	case id == "centos", id == "rhel",
		strings.HasPrefix(id, "rocky"), strings.HasPrefix(id, "alma"):
		return DistroCentos, dnfElseYum(), true
	case id == "arch", id == "manjaro", id == "endeavouros":
		return DistroArch, PMPacman, true
	default:
		return DistroUnknown, PMUnknown, false
	}
}

// distroForIDLike scans ID_LIKE for known family substrings. The order is
// fixed: arch, then debian, then fedora, then rhel. Derivative distros
// resolve to whichever family appears first in this list, not in the
// ID_LIKE string.
func distroForIDLike(idLike string) (Distro, PackageManager, bool) {
	idLike = strings.ToLower(idLike)
	switch {
	case strings.Contains(idLike, "arch"):
		return DistroArch, PMPacman, true
	case strings.Contains(idLike, "debian"):
		return DistroDebian, PMApt, true
	case strings.Contains(idLike, "fedora"):
		return DistroFedora, PMDnf, true
	case strings.Contains(idLike, "rhel"):
		return DistroCentos, dnfElseYum(), true
	default:
		return DistroUnknown, PMUnknown, false
	}
}

// markerRule pairs a marker-file predicate with its classification result,
// evaluated in order with first match winning.
type markerRule struct {
	file    func() string
	resolve func() (Distro, PackageManager)
}

var markerRules = []markerRule{
	{
		file:    func() string { return DebianVersionFile },
		resolve: func() (Distro, PackageManager) { return DistroDebian, PMApt },
	},
	{
		file: func() string { return RedhatReleaseFile },
		resolve: func() (Distro, PackageManager) {
			if dnfElseYum() == PMDnf {
				return DistroFedora, PMDnf
			}
			return DistroCentos, PMYum
		},
	},
	{
		file:    func() string { return ArchReleaseFile },
		resolve: func() (Distro, PackageManager) { return DistroArch, PMPacman },
	},
}

func classifyFromMarkers() (Distro, PackageManager) {
	for _, rule := range markerRules {
		if _, err := os.Stat(rule.file()); err == nil {
			return rule.resolve()
		}
	}
	return DistroUnknown, PMUnknown
}

// dnfElseYum picks dnf when it resolves on the search path, yum otherwise.
// The centos/rhel family ships either depending on age.
func dnfElseYum() PackageManager {
	if _, err := LookPath("dnf"); err == nil {
		return PMDnf
	}
	return PMYum
}

// parseOsRelease reads a shell-style KEY=value file into a map, stripping
// surrounding quotes from values.
func parseOsRelease(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
