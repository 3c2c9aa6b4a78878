package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
	"github.com/uploadworks/upload-bootstrap/internal/tuner"
)

var (
	tuneDryRun    bool
	tuneWritePers bool
	tuneBenchmark bool
	tuneFormat    string
)

// createTuneCommand creates the tune subcommand
func createTuneCommand() *cobra.Command {
	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "applies kernel network tuning for large uploads",
		Long: `Tune raises TCP buffer sizes and connection limits, and
		switches to BBR congestion control when the kernel offers it.
		Applying changes needs root; --dry-run lists the commands
		without executing anything, and --benchmark only reports the
		currently effective settings.`,
		Args: cobra.NoArgs,
		RunE: executeTune,
	}

	tuneCmd.Flags().BoolVar(&tuneDryRun, "dry-run", false,
		"Print the tuning commands without executing them")
	tuneCmd.Flags().BoolVar(&tuneWritePers, "persist", false,
		"Write the sysctl.d config so tuning survives reboots (Linux)")
	tuneCmd.Flags().BoolVar(&tuneBenchmark, "benchmark", false,
		"Only report the current network settings")
	tuneCmd.Flags().StringVar(&tuneFormat, "format", "text",
		"Benchmark output format: text or json")
	return tuneCmd
}

// executeTune handles the tune command execution logic
func executeTune(cmd *cobra.Command, args []string) error {
	desc := sysenv.Classify()
	tn := tuner.New(desc.OS)
	out := cmd.OutOrStdout()

	if tuneBenchmark {
		settings := tn.Benchmark()
		switch tuneFormat {
		case "json":
			b, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding settings: %w", err)
			}
			fmt.Fprintln(out, string(b))
		case "text":
			fmt.Fprintf(out, "OS:                  %s\n", settings.OS)
			fmt.Fprintf(out, "Congestion control:  %s\n", settings.CongestionControl)
			fmt.Fprintf(out, "BBR available:       %t\n", settings.BBRAvailable)
			fmt.Fprintf(out, "Root access:         %t\n", settings.RootAccess)
			if settings.RmemMax != "" {
				fmt.Fprintf(out, "net.core.rmem_max:   %s\n", settings.RmemMax)
				fmt.Fprintf(out, "net.core.wmem_max:   %s\n", settings.WmemMax)
			}
		default:
			return fmt.Errorf("invalid --format %q (expected text|json)", tuneFormat)
		}
		return nil
	}

	applied, total, err := tn.Apply(tuneDryRun, out)
	if err != nil {
		return err
	}
	if !tuneDryRun {
		fmt.Fprintf(out, "Applied %d/%d network optimizations\n", applied, total)
		if tuneWritePers {
			if err := tn.WritePersistentConfig(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Persistent config written to %s\n", tuner.SysctlConfFile)
		}
	}
	return nil
}
