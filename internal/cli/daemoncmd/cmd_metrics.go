package daemoncmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forge-mcp/forge/internal/metrics"
	"github.com/forge-mcp/forge/internal/xdgpaths"
)

func newMetricsCmd() *cobra.Command {
	var (
		jsonOutput bool
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "metrics <repo-root>",
		Short: "Summarize a repository's recorded task metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot := args[0]
			stateDir, err := xdgpaths.RepoStateDir(repoRoot)
			if err != nil {
				return failWithCode(2, fmt.Errorf("resolve repo state dir: %w", err))
			}
			log, err := metrics.Open(filepath.Join(stateDir, "metrics"))
			if err != nil {
				return failWithCode(2, fmt.Errorf("open metrics log: %w", err))
			}

			summary, err := log.Summarize()
			if err != nil {
				return failWithCode(2, fmt.Errorf("summarize metrics: %w", err))
			}

			if jsonOutput {
				out := map[string]any{"summary": summary}
				if recent > 0 {
					rows, err := log.Recent(recent)
					if err != nil {
						return failWithCode(2, fmt.Errorf("read recent metrics: %w", err))
					}
					out["recent"] = rows
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			cmd.Printf("Task count:    %d\n", summary.TaskCount)
			cmd.Printf("Success count: %d\n", summary.SuccessCount)
			cmd.Printf("Total cost:    $%.4f\n", summary.TotalCostUSD)
			cmd.Printf("Total time:    %.1fs\n", summary.TotalDurationS)

			if recent > 0 {
				rows, err := log.Recent(recent)
				if err != nil {
					return failWithCode(2, fmt.Errorf("read recent metrics: %w", err))
				}
				cmd.Println()
				cmd.Printf("Last %d tasks:\n", len(rows))
				for _, r := range rows {
					cmd.Printf("  %s  %-6s  %-10s  %s  $%.4f\n", r.UTCTimestamp, r.Role, r.Tool, r.ExecutionMode, r.TotalCostUSD)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print metrics as JSON instead of text")
	cmd.Flags().IntVar(&recent, "recent", 0, "Also print the N most recently recorded tasks")
	return cmd
}
