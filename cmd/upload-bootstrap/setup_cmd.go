package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uploadworks/upload-bootstrap/internal/config"
	"github.com/uploadworks/upload-bootstrap/internal/installer"
	"github.com/uploadworks/upload-bootstrap/internal/pkgresolve"
	"github.com/uploadworks/upload-bootstrap/internal/report"
	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
	"github.com/uploadworks/upload-bootstrap/internal/tuner"
	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
)

var (
	setupManifestFile string
	setupAssumeYes    bool
)

// createSetupCommand creates the setup subcommand
func createSetupCommand() *cobra.Command {
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "runs the full bootstrap for the upload tool",
		Long: `Setup classifies the host, resolves every dependency declared
		in the manifest, installs the resulting packages, makes a Node
		runtime available, creates the Python virtual environment, and
		installs pip and npm dependencies. A run report is written under
		the manifest's reports directory.`,
		Args: cobra.NoArgs,
		RunE: executeSetup,
	}

	setupCmd.Flags().StringVar(&setupManifestFile, "manifest", config.DefaultManifestFile,
		"Path to the setup manifest")
	setupCmd.Flags().BoolVar(&setupAssumeYes, "yes", false,
		"Continue without prompting when the environment cannot be classified")
	return setupCmd
}

// confirmContinue asks the operator whether to proceed on an
// unclassified environment. --yes skips the prompt.
func confirmContinue(cmd *cobra.Command, desc sysenv.Descriptor) (bool, error) {
	if setupAssumeYes {
		return true, nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Environment could not be fully classified (os=%s distro=%s).\n", desc.OS, desc.Distro)
	fmt.Fprint(out, "Continue anyway? Package installation will need manual steps. [y/N]: ")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// executeSetup handles the setup command execution logic
func executeSetup(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	desc := sysenv.Classify()
	log.Infof("Host classified: os=%s distro=%s packageManager=%s",
		desc.OS, desc.Distro, desc.PackageManager)

	if desc.OS == sysenv.OSUnknown ||
		(desc.OS == sysenv.OSLinux && desc.Distro == sysenv.DistroUnknown) {
		proceed, err := confirmContinue(cmd, desc)
		if err != nil {
			return err
		}
		if !proceed {
			return fmt.Errorf("aborted: environment not classified")
		}
	}

	manifest, err := config.LoadOrDefault(setupManifestFile)
	if err != nil {
		return err
	}

	rep := report.New()
	inst := installer.New(desc, manifest, rep)

	defer func() {
		if path, err := rep.WriteFile(manifest.Reports.Dir); err != nil {
			log.Warnf("Failed to write run report: %v", err)
		} else {
			log.Infof("Run report: %s", path)
		}
	}()

	resolutions := pkgresolve.ResolveAll(manifest.Tags(), desc.Distro)
	packages, unresolved := installer.SplitResolutions(resolutions)
	for _, tag := range unresolved {
		log.Warnf("No package mapping for %q on distro %q; install it manually", tag, desc.Distro)
		rep.Add("resolve "+string(tag), "no mapping, manual install required", false)
	}

	if err := inst.InstallPackages(packages); err != nil {
		return err
	}
	if err := inst.EnsureNodeRuntime(); err != nil {
		return err
	}
	if err := inst.SetupVirtualenv(); err != nil {
		return err
	}
	if err := inst.InstallNpmPackages(); err != nil {
		return err
	}

	if manifest.Tuning.Enabled {
		tn := tuner.New(desc.OS)
		applied, total, err := tn.Apply(false, cmd.OutOrStdout())
		rep.Add("network tuning", fmt.Sprintf("%d/%d optimizations applied", applied, total), err == nil)
		if err != nil {
			return err
		}
		if manifest.Tuning.Persist {
			if err := tn.WritePersistentConfig(); err != nil {
				rep.Add("persist tuning", "", false)
				return err
			}
			rep.Add("persist tuning", tuner.SysctlConfFile, true)
		}
	}

	if len(unresolved) > 0 {
		return fmt.Errorf("setup finished, but %d dependency tag(s) need manual installation", len(unresolved))
	}

	log.Infof("Bootstrap complete")
	return nil
}
