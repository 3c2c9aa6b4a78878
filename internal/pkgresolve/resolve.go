// Package pkgresolve maps logical dependency tags to the concrete
// package names each distribution family uses for them.
package pkgresolve

import (
	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
)

// Tag is an abstract identifier for a needed tool, independent of how
// any given distro names its package.
type Tag string

const (
	TagPython3    Tag = "python3"
	TagNodeJS     Tag = "nodejs"
	TagChromium   Tag = "chromium"
	TagAria2      Tag = "aria2"
	TagFFmpeg     Tag = "ffmpeg"
	TagBuildTools Tag = "build-tools"
)

// Tags returns the enumerated tag set in install order.
func Tags() []Tag {
	return []Tag{TagPython3, TagNodeJS, TagChromium, TagAria2, TagFFmpeg, TagBuildTools}
}

// Resolution is the outcome of a lookup: either an ordered package list,
// or an explicit no-mapping marker. No mapping means the operator has to
// install the dependency by hand; it is never the same as an empty list.
type Resolution struct {
	Tag       Tag      `json:"tag"`
	Packages  []string `json:"packages,omitempty"`
	NoMapping bool     `json:"noMapping,omitempty"`
}

// packageTable is the tag x distro lookup table. Ubuntu and Debian share
// rows throughout.
var packageTable = map[Tag]map[sysenv.Distro][]string{
	TagPython3: {
		sysenv.DistroUbuntu: {"python3", "python3-pip", "python3-venv"},
		sysenv.DistroDebian: {"python3", "python3-pip", "python3-venv"},
		sysenv.DistroFedora: {"python3", "python3-pip", "python3-venv"},
		sysenv.DistroCentos: {"python3", "python3-pip", "python3-venv"},
		sysenv.DistroArch:   {"python", "python-pip", "python-virtualenv"},
	},
	TagNodeJS: {
		sysenv.DistroUbuntu: {"nodejs", "npm"},
		sysenv.DistroDebian: {"nodejs", "npm"},
		sysenv.DistroFedora: {"nodejs", "npm"},
		sysenv.DistroCentos: {"nodejs", "npm"},
		sysenv.DistroArch:   {"nodejs", "npm"},
	},
	TagChromium: {
		sysenv.DistroUbuntu: {"chromium-browser"},
		sysenv.DistroDebian: {"chromium-browser"},
		sysenv.DistroFedora: {"chromium"},
		sysenv.DistroCentos: {"chromium"},
		sysenv.DistroArch:   {"chromium"},
	},
	TagAria2: {
		sysenv.DistroUbuntu: {"aria2"},
		sysenv.DistroDebian: {"aria2"},
		sysenv.DistroFedora: {"aria2"},
		sysenv.DistroCentos: {"aria2"},
		sysenv.DistroArch:   {"aria2"},
	},
	TagFFmpeg: {
		sysenv.DistroUbuntu: {"ffmpeg"},
		sysenv.DistroDebian: {"ffmpeg"},
		sysenv.DistroFedora: {"ffmpeg"},
		sysenv.DistroCentos: {"ffmpeg"},
		sysenv.DistroArch:   {"ffmpeg"},
	},
	TagBuildTools: {
		sysenv.DistroUbuntu: {"build-essential", "curl", "wget", "git"},
		sysenv.DistroDebian: {"build-essential", "curl", "wget", "git"},
		sysenv.DistroFedora: {"gcc", "gcc-c++", "make", "curl", "wget", "git"},
		sysenv.DistroCentos: {"gcc", "gcc-c++", "make", "curl", "wget", "git"},
		sysenv.DistroArch:   {"base-devel", "curl", "wget", "git"},
	},
}

// Known reports whether tag belongs to the enumerated set.
func Known(tag Tag) bool {
	_, ok := packageTable[tag]
	return ok
}

// Resolve looks up the package list for (tag, distro). It performs no
// I/O and is total: every input yields a defined result.
//
// An unknown distro always yields no mapping. A tag outside the
// enumerated set passes through unchanged as a one-element list, so an
// operator can declare a raw package name and have it installed
// literally. That behavior is load-bearing for custom manifests; do not
// tighten it.
func Resolve(tag Tag, distro sysenv.Distro) Resolution {
	byDistro, known := packageTable[tag]
	if !known {
		if distro == sysenv.DistroUnknown {
			return Resolution{Tag: tag, NoMapping: true}
		}
		return Resolution{Tag: tag, Packages: []string{string(tag)}}
	}

	packages, ok := byDistro[distro]
	if !ok {
		return Resolution{Tag: tag, NoMapping: true}
	}

	out := make([]string, len(packages))
	copy(out, packages)
	return Resolution{Tag: tag, Packages: out}
}

// ResolveAll resolves every tag against the same distro, preserving order.
func ResolveAll(tags []Tag, distro sysenv.Distro) []Resolution {
	results := make([]Resolution, 0, len(tags))
	for _, tag := range tags {
		results = append(results, Resolve(tag, distro))
	}
	return results
}
