// upload-bootstrap prepares a host for the content-upload automation
// tool: it detects the OS and distribution, installs the required
// packages, sets up the Python and Node environments, and optionally
// applies kernel network tuning.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
)

// Logging command flags
var (
	logLevel string
	verbose  bool
)

func main() {
	root := createRootCommand()
	attachLoggingHooks(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// createRootCommand creates the root command and registers subcommands.
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "upload-bootstrap",
		Short: "bootstraps a host for the upload automation tool",
		Long: `upload-bootstrap classifies the host into an (OS, distribution,
		package manager) descriptor, resolves logical dependencies like
		"chromium" or "build-tools" into distro-specific package names,
		and drives the package manager, virtualenv, and npm steps to get
		the uploader running.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Shorthand for --log-level debug")

	rootCmd.AddCommand(createDetectCommand())
	rootCmd.AddCommand(createResolveCommand())
	rootCmd.AddCommand(createSetupCommand())
	rootCmd.AddCommand(createTuneCommand())

	return rootCmd
}

// resolveRequestedLogLevel picks the level for this invocation. An
// explicit --log-level always wins; --verbose is a debug fallback.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}

	var verboseFlag *pflag.Flag
	if cmd.Flags() != nil {
		verboseFlag = cmd.Flags().Lookup("verbose")
	}
	if verboseFlag != nil && verboseFlag.Changed && verboseFlag.Value.String() == "true" {
		return "debug"
	}
	return ""
}

// attachLoggingHooks initializes the logger before any subcommand runs.
func attachLoggingHooks(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
			level := resolveRequestedLogLevel(cmd)
			if level == "" {
				level = "info"
			}
			return logger.Init(level)
		}
	}
}
