// Package config loads and validates the setup manifest that declares
// what the bootstrap should install.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/uploadworks/upload-bootstrap/internal/pkgresolve"
)

// DefaultManifestFile is looked up in the working directory when no
// --manifest flag is given.
const DefaultManifestFile = "upload-bootstrap.yaml"

// Manifest declares the dependencies and layout of one bootstrap run.
type Manifest struct {
	// Dependencies are logical tags resolved per distro. Entries outside
	// the enumerated tag set are treated as literal package names.
	Dependencies []string `yaml:"dependencies" json:"dependencies"`

	Venv    VenvConfig   `yaml:"venv" json:"venv"`
	Node    NodeConfig   `yaml:"node" json:"node"`
	Tuning  TuningConfig `yaml:"tuning" json:"tuning"`
	Reports ReportConfig `yaml:"reports" json:"reports"`

	// ToolsDir receives runtimes installed from tarballs when no package
	// manager is available.
	ToolsDir string `yaml:"toolsDir" json:"toolsDir"`
}

// VenvConfig describes the Python virtual environment to create.
type VenvConfig struct {
	Dir          string `yaml:"dir" json:"dir"`
	Requirements string `yaml:"requirements" json:"requirements"`
}

// NodeConfig describes the Node runtime and npm packages to install.
type NodeConfig struct {
	Version  string   `yaml:"version" json:"version"`
	Packages []string `yaml:"packages" json:"packages"`
	// Checksum is the optional SHA-256 of the fallback tarball.
	Checksum string `yaml:"checksum" json:"checksum"`
}

// TuningConfig toggles kernel network tuning during setup.
type TuningConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Persist bool `yaml:"persist" json:"persist"`
}

// ReportConfig controls where run reports land.
type ReportConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// Default returns the manifest used when no file is present: every
// enumerated tag, conventional directories, tuning off.
func Default() *Manifest {
	deps := make([]string, 0, len(pkgresolve.Tags()))
	for _, tag := range pkgresolve.Tags() {
		deps = append(deps, string(tag))
	}
	return &Manifest{
		Dependencies: deps,
		Venv: VenvConfig{
			Dir:          ".venv",
			Requirements: "requirements.txt",
		},
		Node: NodeConfig{
			Version: "20.11.1",
		},
		Reports: ReportConfig{
			Dir: "reports",
		},
		ToolsDir: ".tools",
	}
}

// Load reads, validates, and decodes the manifest at path. Absent
// optional fields fall back to the defaults.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	if err := ValidateManifestYAML(data); err != nil {
		return nil, fmt.Errorf("validating manifest %s: %w", path, err)
	}

	manifest := Default()
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}

	manifest.applyDefaults()
	return manifest, nil
}

// LoadOrDefault loads path when it exists and falls back to the default
// manifest when it does not.
func LoadOrDefault(path string) (*Manifest, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (m *Manifest) applyDefaults() {
	defaults := Default()
	if len(m.Dependencies) == 0 {
		m.Dependencies = defaults.Dependencies
	}
	if m.Venv.Dir == "" {
		m.Venv.Dir = defaults.Venv.Dir
	}
	if m.Node.Version == "" {
		m.Node.Version = defaults.Node.Version
	}
	if m.Reports.Dir == "" {
		m.Reports.Dir = defaults.Reports.Dir
	}
	if m.ToolsDir == "" {
		m.ToolsDir = defaults.ToolsDir
	}
}

// Tags converts the declared dependency strings into resolver tags.
func (m *Manifest) Tags() []pkgresolve.Tag {
	tags := make([]pkgresolve.Tag, 0, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		tags = append(tags, pkgresolve.Tag(dep))
	}
	return tags
}
