package cli

import (
	"github.com/spf13/cobra"

	"github.com/mbroton/notcli/internal/config"
	"github.com/mbroton/notcli/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage notcli configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefault()
		if err != nil {
			return fail(err)
		}
		hintStderr(ui.Successf("config at %s", path))
		return outputSuccess(map[string]any{"path": path}, nil)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data := map[string]any{
			"config_path":         config.DefaultPath(),
			"state_dir":           cfg.ResolveStateDir(),
			"api_base_url":        cfg.APIBaseURL,
			"default_data_source": cfg.DefaultDataSource,
			"audit_enabled":       cfg.Audit.Enabled,
			"schema_ttl":          cfg.SchemaTTL().String(),
			"token_set":           cfg.ResolveToken() != "",
		}
		if configPath != "" {
			data["config_path"] = configPath
		}
		return outputSuccess(data, nil)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
