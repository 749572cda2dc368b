package cli

import (
	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		version := buildinfo.Version
		if version == "" {
			version = "dev"
		}
		return outputSuccess(map[string]any{
			"version": version,
			"commit":  buildinfo.Commit,
			"date":    buildinfo.Date,
		}, nil)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
