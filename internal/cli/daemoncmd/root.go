// Package daemoncmd implements forge-daemon's cobra command tree:
// start/stop/restart/status/connect/metrics/reload for the five fixed
// daemon roles, grounded on the teacher's internal/cli/root.go and
// internal/cli/colony subcommand layout.
package daemoncmd

import (
	"github.com/spf13/cobra"

	"github.com/forge-mcp/forge/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "forge-daemon",
	Short: "Manage forge's MCP daemon fleet",
	Long: `forge-daemon supervises the five forge MCP daemons (coder, researcher,
secretary, resources, prompts): starting and stopping them as detached
background processes, reporting their live status, and proxying a
client's stdio session to a running daemon's HTTP/SSE endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newMetricsCmd())
	rootCmd.AddCommand(newReloadCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("forge-daemon version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
