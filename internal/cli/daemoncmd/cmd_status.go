package daemoncmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/supervisor"
)

var (
	statusRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type roleStatus struct {
	Role    string `json:"role" header:"Role"`
	Running bool   `json:"running" header:"Running"`
	PID     int    `json:"pid,omitempty" header:"PID"`
	Port    int    `json:"port" header:"Port"`
	URL     string `json:"url,omitempty" header:"URL"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [role...]",
		Short: "Show live status for one or more daemon roles (default: all five)",
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
			statuses := make([]roleStatus, 0, len(roles))
			for _, role := range roles {
				port := settings.PortForRole(role)
				st, err := sup.Status(role, port)
				if err != nil {
					return failWithCode(2, fmt.Errorf("status %s: %w", role, err))
				}
				statuses = append(statuses, roleStatus{
					Role:    string(role),
					Running: st.Running,
					PID:     st.PID,
					Port:    port,
					URL:     st.URL,
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			renderStatusTable(cmd, statuses)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON instead of a table")
	return cmd
}

func renderStatusTable(cmd *cobra.Command, statuses []roleStatus) {
	colorize := term.IsTerminal(int(os.Stdout.Fd()))

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Role", "Status", "PID", "Port", "URL"})
	for _, s := range statuses {
		label := "stopped"
		if s.Running {
			label = "running"
		}
		if colorize {
			if s.Running {
				label = statusRunningStyle.Render(label)
			} else {
				label = statusStoppedStyle.Render(label)
			}
		}
		pid := ""
		if s.PID != 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		t.AppendRow(table.Row{s.Role, label, pid, s.Port, s.URL})
	}
	t.Render()
}
