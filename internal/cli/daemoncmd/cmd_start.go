package daemoncmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/supervisor"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [role...]",
		Short: "Start one or more daemon roles (default: all five)",
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
				argv, err := daemonArgv(role, port)
				if err != nil {
					return failWithCode(2, err)
				}
				status, err := sup.Start(role, port, argv)
				if err != nil {
					return failWithCode(2, fmt.Errorf("start %s: %w", role, err))
				}
				cmd.Printf("%-12s started  pid=%d  %s\n", role, status.PID, status.URL)
			}
			return nil
		},
	}
	return cmd
}
