package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
)

// Output format command flags
var (
	detectFormat string
	detectPretty bool = true
)

// createDetectCommand creates the detect subcommand
func createDetectCommand() *cobra.Command {
	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "classifies the host OS, distribution, and package manager",
		Long: `Detect inspects the OS-family identifier and, on Linux, the
		os-release metadata and marker files, and prints the resulting
		environment descriptor. Unknown fields mean the surrounding
		tooling cannot pick packages automatically.`,
		Args: cobra.NoArgs,
		RunE: executeDetect,
	}

	detectCmd.Flags().StringVar(&detectFormat, "format", "text",
		"Output format: text or json")
	detectCmd.Flags().BoolVar(&detectPretty, "pretty", true,
		"Pretty-print JSON output (only for --format json)")
	return detectCmd
}

// executeDetect handles the detect command execution logic
func executeDetect(cmd *cobra.Command, args []string) error {
	desc := sysenv.Classify()
	out := cmd.OutOrStdout()

	switch strings.ToLower(detectFormat) {
	case "json":
		var (
			b   []byte
			err error
		)
		if detectPretty {
			b, err = json.MarshalIndent(desc, "", "  ")
		} else {
			b, err = json.Marshal(desc)
		}
		if err != nil {
			return fmt.Errorf("encoding descriptor: %w", err)
		}
		fmt.Fprintln(out, string(b))
		return nil

	case "text":
		fmt.Fprintf(out, "OS:              %s\n", desc.OS)
		fmt.Fprintf(out, "Distribution:    %s\n", desc.Distro)
		fmt.Fprintf(out, "Package manager: %s\n", desc.PackageManager)
		if desc.OS == sysenv.OSUnknown ||
			(desc.OS == sysenv.OSLinux && desc.Distro == sysenv.DistroUnknown) {
			fmt.Fprintln(out, "Environment could not be fully classified; package installation will need manual steps.")
		}
		return nil

	default:
		return fmt.Errorf("invalid --format %q (expected text|json)", detectFormat)
	}
}
