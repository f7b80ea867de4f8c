// Package main provides the forge-coder daemon binary: the coder role's
// MCP tool server, serving stdio by default or HTTP/SSE with --http.
package main

import (
	"fmt"
	"os"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/rolemain"
)

func main() {
	if err := rolemain.Run(constants.RoleCoder); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
