package daemoncmd

import (
	"fmt"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/supervisor"
)

// newReloadCmd signals SIGHUP to each running role, which rolemain.Run
// handles by re-reading the env-file and process environment in place
// rather than restarting the process.
func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload [role...]",
		Short: "Signal running daemon roles to reload their configuration (default: all five)",
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := parseRoles(args)
			if err != nil {
				return failWithCode(1, err)
			}

			path, err := config.DefaultPath()
			if err != nil {
				return failWithCode(2, err)
			}
			settings, err := config.Load(path)
			if err != nil {
				return failWithCode(2, fmt.Errorf("load config: %w", err))
			}

			sup := supervisor.New(zerolog.Nop())
			for _, role := range roles {
				port := settings.PortForRole(role)
				st, err := sup.Status(role, port)
				if err != nil {
					return failWithCode(2, fmt.Errorf("status %s: %w", role, err))
				}
				if !st.Running {
					cmd.Printf("%-12s not running, skipped\n", role)
					continue
				}
				if err := syscall.Kill(st.PID, syscall.SIGHUP); err != nil {
					return failWithCode(2, fmt.Errorf("signal %s: %w", role, err))
				}
				cmd.Printf("%-12s reload signaled\n", role)
			}
			return nil
		},
	}
}
