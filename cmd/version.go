package cmd

import (
	"encoding/json"

	"edurecovery/internal/version"

	"github.com/spf13/cobra"
)

// newVersionCmd creates and returns the version command.
func newVersionCmd() *cobra.Command {
	var (
		short  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show version information for the edurecovery service.

Version, commit and build time are injected with ldflags at build time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, short, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Show version information as JSON")
	return cmd
}

func runVersion(cmd *cobra.Command, short, asJSON bool) error {
	info := version.NewVersionInfo()
	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}
	return info.Write(cmd.OutOrStdout(), short)
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newVersionCmd())
}
