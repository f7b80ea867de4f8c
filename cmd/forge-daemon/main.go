// Package main provides the forge-daemon binary: the CLI that starts,
// stops, restarts, and reports on forge's five MCP daemon roles, and
// bridges a client's stdio to a running one.
package main

import (
	"fmt"
	"os"

	"github.com/forge-mcp/forge/internal/cli/daemoncmd"
)

func main() {
	err := daemoncmd.Execute()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(daemoncmd.ExitCode(err))
}
