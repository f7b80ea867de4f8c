package daemoncmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forge-mcp/forge/internal/supervisor"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [role...]",
		Short: "Stop one or more daemon roles (default: all five)",
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := parseRoles(args)
			if err != nil {
				return failWithCode(1, err)
			}

			sup := supervisor.New(zerolog.Nop())
			for _, role := range roles {
				if err := sup.Stop(role); err != nil {
					return failWithCode(2, fmt.Errorf("stop %s: %w", role, err))
				}
				cmd.Printf("%-12s stopped\n", role)
			}
			return nil
		},
	}
}
