// Package installer turns resolved package lists into package-manager
// invocations and sets up the language runtimes the uploader needs.
package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uploadworks/upload-bootstrap/internal/config"
	"github.com/uploadworks/upload-bootstrap/internal/pkgresolve"
	"github.com/uploadworks/upload-bootstrap/internal/report"
	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
	"github.com/uploadworks/upload-bootstrap/internal/utils/shell"
	"github.com/uploadworks/upload-bootstrap/internal/utils/slice"
)

// Installer drives one bootstrap run.
type Installer struct {
	Env      sysenv.Descriptor
	Manifest *config.Manifest
	Report   *report.Report
}

// New builds an installer. The report may be nil when no audit trail is
// wanted.
func New(env sysenv.Descriptor, manifest *config.Manifest, rep *report.Report) *Installer {
	return &Installer{Env: env, Manifest: manifest, Report: rep}
}

func (i *Installer) record(name, detail string, ok bool) {
	if i.Report != nil {
		i.Report.Add(name, detail, ok)
	}
}

// SplitResolutions separates resolved package lists from tags the
// resolver had no mapping for. The unresolved tags need a manual-install
// message; they must never be treated as "install nothing".
func SplitResolutions(resolutions []pkgresolve.Resolution) (packages []string, unresolved []pkgresolve.Tag) {
	for _, res := range resolutions {
		if res.NoMapping {
			unresolved = append(unresolved, res.Tag)
			continue
		}
		packages = append(packages, res.Packages...)
	}
	return slice.Dedup(packages), unresolved
}

// InstallPackages installs the given packages with the environment's
// package manager.
func (i *Installer) InstallPackages(packages []string) error {
	log := logger.Logger()

	if len(packages) == 0 {
		return nil
	}

	pkgList := strings.Join(packages, " ")

	var installCmd string
	switch i.Env.PackageManager {
	case sysenv.PMApt:
		log.Infof("Updating package list with apt-get update")
		if _, err := shell.ExecCmd("apt-get update", true, nil); err != nil {
			log.Warnf("Failed to update package list: %v (continuing anyway)", err)
		}
		installCmd = "apt-get install -y " + pkgList
	case sysenv.PMDnf:
		installCmd = "dnf install -y " + pkgList
	case sysenv.PMYum:
		installCmd = "yum install -y " + pkgList
	case sysenv.PMPacman:
		installCmd = "pacman -Sy --noconfirm " + pkgList
	default:
		i.record("install packages", pkgList, false)
		return fmt.Errorf("no supported package manager detected; install manually: %s", pkgList)
	}

	log.Infof("Installing packages: %s", pkgList)
	output, err := shell.ExecCmd(installCmd, true, nil)
	if err != nil {
		i.record("install packages", installCmd, false)
		return fmt.Errorf("failed to install packages: %w\nOutput: %s", err, output)
	}

	i.record("install packages", installCmd, true)
	return nil
}

// SetupVirtualenv creates the Python virtual environment and installs
// the declared requirements into it.
func (i *Installer) SetupVirtualenv() error {
	log := logger.Logger()
	venvDir := i.Manifest.Venv.Dir

	python := "python3"
	if exists, _ := shell.IsCommandExist(python); !exists {
		// Arch ships the interpreter as plain "python".
		if exists, _ := shell.IsCommandExist("python"); exists {
			python = "python"
		} else {
			i.record("create virtualenv", venvDir, false)
			return fmt.Errorf("no python interpreter found on PATH")
		}
	}

	log.Infof("Creating virtual environment in %s", venvDir)
	if output, err := shell.ExecCmd(fmt.Sprintf("%s -m venv %s", python, venvDir), false, nil); err != nil {
		i.record("create virtualenv", venvDir, false)
		return fmt.Errorf("failed to create virtualenv: %w\nOutput: %s", err, output)
	}
	i.record("create virtualenv", venvDir, true)

	requirements := i.Manifest.Venv.Requirements
	if requirements == "" {
		return nil
	}
	if _, err := os.Stat(requirements); os.IsNotExist(err) {
		log.Warnf("Requirements file %s not found, skipping pip install", requirements)
		return nil
	}

	pip := filepath.Join(venvDir, "bin", "pip")
	installCmd := fmt.Sprintf("%s install -r %s", pip, requirements)
	log.Infof("Installing Python dependencies from %s", requirements)
	if output, err := shell.ExecCmdWithStream(installCmd, false, nil); err != nil {
		i.record("pip install", requirements, false)
		return fmt.Errorf("failed to install Python dependencies: %w\nOutput: %s", err, output)
	}

	i.record("pip install", requirements, true)
	return nil
}

// InstallNpmPackages installs the manifest's npm packages into the
// working directory.
func (i *Installer) InstallNpmPackages() error {
	log := logger.Logger()
	packages := i.Manifest.Node.Packages
	if len(packages) == 0 {
		return nil
	}

	if exists, _ := shell.IsCommandExist("npm"); !exists {
		i.record("npm install", "", false)
		return fmt.Errorf("npm not found on PATH; install the nodejs dependency first")
	}

	pkgList := strings.Join(packages, " ")
	log.Infof("Installing npm packages: %s", pkgList)
	if output, err := shell.ExecCmdWithStream("npm install "+pkgList, false, nil); err != nil {
		i.record("npm install", pkgList, false)
		return fmt.Errorf("failed to install npm packages: %w\nOutput: %s", err, output)
	}

	i.record("npm install", pkgList, true)
	return nil
}
