package daemoncmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/proxy"
	"github.com/forge-mcp/forge/internal/supervisor"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <role>",
		Short: "Bridge this process's stdio to a running daemon role's HTTP/SSE endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := parseRoles(args)
			if err != nil {
				return failWithCode(1, err)
			}
			role := roles[0]

			path, err := config.DefaultPath()
			if err != nil {
				return failWithCode(2, err)
			}
			settings, err := config.Load(path)
			if err != nil {
				return failWithCode(2, fmt.Errorf("load config: %w", err))
			}
			port := settings.PortForRole(role)

			sup := supervisor.New(zerolog.Nop())
			st, err := sup.Status(role, port)
			if err != nil {
				return failWithCode(2, fmt.Errorf("status %s: %w", role, err))
			}
			if !st.Running {
				return failWithCode(3, fmt.Errorf("%s is not running; start it with 'forge-daemon start %s'", role, role))
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			p := proxy.New(port, zerolog.Nop())
			return p.Run(ctx, os.Stdin, cmd.OutOrStdout())
		},
	}
}
