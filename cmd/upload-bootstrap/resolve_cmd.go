package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uploadworks/upload-bootstrap/internal/pkgresolve"
	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
	"github.com/uploadworks/upload-bootstrap/internal/utils/slice"
)

var (
	resolveDistro string
	resolveFormat string
)

// createResolveCommand creates the resolve subcommand
func createResolveCommand() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve [flags] TAG...",
		Short: "maps logical dependency tags to distro package names",
		Long: `Resolve looks each TAG (python3, nodejs, chromium, aria2,
		ffmpeg, build-tools) up in the package table for the detected or
		forced distribution. Tags outside the known set pass through as
		literal package names. Tags with no mapping exit non-zero so
		scripts notice the manual step.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeResolve,
	}

	resolveCmd.Flags().StringVar(&resolveDistro, "distro", "",
		"Force a distribution (ubuntu, debian, fedora, centos, arch) instead of detecting")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "text",
		"Output format: text or json")
	return resolveCmd
}

// forceableDistros are the values --distro accepts.
var forceableDistros = []string{
	string(sysenv.DistroUbuntu), string(sysenv.DistroDebian),
	string(sysenv.DistroFedora), string(sysenv.DistroCentos),
	string(sysenv.DistroArch), string(sysenv.DistroUnknown),
}

// resolveTargetDistro picks the distro from the flag or detection.
func resolveTargetDistro() (sysenv.Distro, error) {
	if resolveDistro == "" {
		return sysenv.Classify().Distro, nil
	}

	name := strings.ToLower(resolveDistro)
	if !slice.Contains(forceableDistros, name) {
		return sysenv.DistroUnknown, fmt.Errorf("invalid --distro %q", resolveDistro)
	}
	return sysenv.Distro(name), nil
}

// executeResolve handles the resolve command execution logic
func executeResolve(cmd *cobra.Command, args []string) error {
	distro, err := resolveTargetDistro()
	if err != nil {
		return err
	}

	tags := make([]pkgresolve.Tag, 0, len(args))
	for _, arg := range args {
		tags = append(tags, pkgresolve.Tag(arg))
	}
	resolutions := pkgresolve.ResolveAll(tags, distro)

	out := cmd.OutOrStdout()
	unresolved := 0

	switch strings.ToLower(resolveFormat) {
	case "json":
		payload := struct {
			Distro      sysenv.Distro           `json:"distro"`
			Resolutions []pkgresolve.Resolution `json:"resolutions"`
		}{Distro: distro, Resolutions: resolutions}
		b, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding resolutions: %w", err)
		}
		fmt.Fprintln(out, string(b))
		for _, res := range resolutions {
			if res.NoMapping {
				unresolved++
			}
		}

	case "text":
		for _, res := range resolutions {
			if res.NoMapping {
				fmt.Fprintf(out, "%s: no package mapping for distro %q, install it manually\n", res.Tag, distro)
				unresolved++
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", res.Tag, strings.Join(res.Packages, " "))
		}

	default:
		return fmt.Errorf("invalid --format %q (expected text|json)", resolveFormat)
	}

	if unresolved > 0 {
		return fmt.Errorf("%d dependency tag(s) could not be resolved", unresolved)
	}
	return nil
}
