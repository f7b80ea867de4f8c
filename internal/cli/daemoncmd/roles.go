package daemoncmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/forge-mcp/forge/internal/constants"
)

// parseRoles resolves the roles named on the command line, defaulting to
// every role when none are given.
func parseRoles(names []string) ([]constants.Role, error) {
	if len(names) == 0 {
		return constants.Roles, nil
	}
	known := make(map[constants.Role]bool, len(constants.Roles))
	for _, r := range constants.Roles {
		known[r] = true
	}
	roles := make([]constants.Role, 0, len(names))
	for _, name := range names {
		r := constants.Role(name)
		if !known[r] {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// daemonArgv resolves the forge-<role> binary's argv, preferring a
// sibling of the currently-running forge-daemon executable (the
// development/install layout) and falling back to $PATH. Supervised
// daemons always serve HTTP/SSE (never stdio): the Daemon Supervisor's
// health check verifies port ownership, and forge-daemon connect bridges
// a client's stdio to that port via the Stdio<->SSE Proxy. A daemon
// launched directly by an MCP client as its own subprocess would invoke
// forge-<role> itself and get the stdio default instead.
func daemonArgv(role constants.Role, port int) ([]string, error) {
	binName := fmt.Sprintf("forge-%s", role)
	bin := binName

	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), binName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			bin = candidate
		}
	}
	if bin == binName {
		if resolved, err := exec.LookPath(binName); err == nil {
			bin = resolved
		} else {
			return nil, fmt.Errorf("locate %s binary: %w", binName, err)
		}
	}

	return []string{bin, "--http", "--port", fmt.Sprintf("%d", port)}, nil
}
