package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "claude-gateway",
	Short: "OpenAI-compatible chat completions over the Claude agent",
	Long: `claude-gateway exposes the Claude CLI agent behind the OpenAI
Chat Completions API, so existing OpenAI clients can talk to it unchanged.

Examples:
  claude-gateway serve --api-key secret          # listen on 0.0.0.0:8000
  claude-gateway serve --host 127.0.0.1 --allow-no-auth
  claude-gateway models                          # list advertised models
  claude-gateway config show                     # print effective config`,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
