// Package main provides the forge-researcher daemon binary.
package main

import (
	"fmt"
	"os"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/rolemain"
)

func main() {
	if err := rolemain.Run(constants.RoleResearcher); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
