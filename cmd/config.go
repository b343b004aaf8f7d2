package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/claude-gateway/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect claude-gateway configuration",
	Long: `Inspect the effective configuration: defaults, the config file and
environment variables merged together. Secrets are masked.

Examples:
  claude-gateway config                 # same as config show
  claude-gateway config show
  claude-gateway config path`,
	RunE: configShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  configShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file that would be loaded",
	Args:  cobra.NoArgs,
	RunE:  configPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.File == "" {
		fmt.Fprintf(out, "# No config file (using defaults and environment)\n\n")
	} else {
		fmt.Fprintf(out, "# %s\n\n", cfg.File)
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func configPath(cmd *cobra.Command, args []string) error {
	file, err := config.FindConfigFile(configFile)
	if err != nil {
		return err
	}
	if file != "" {
		fmt.Fprintln(cmd.OutOrStdout(), file)
		return nil
	}
	xdgPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "No config file found (searched ./%s.yaml and %s)\n", config.AppName, xdgPath)
	return nil
}
