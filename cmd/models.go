package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samsaffron/claude-gateway/internal/llm"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models served by /v1/models",
	Long: `List the model ids the gateway advertises and the backend tier each
one maps to.

Examples:
  claude-gateway models
  claude-gateway models --json`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output the /v1/models response body")
}

func runModels(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if modelsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(modelList())
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIER\tOWNED BY")
	for _, m := range llm.Models {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Tier, m.OwnedBy)
	}
	return tw.Flush()
}
