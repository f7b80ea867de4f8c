// Package main provides the forge-resources daemon binary.
package main

import (
	"fmt"
	"os"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/rolemain"
)

func main() {
	if err := rolemain.Run(constants.RoleResources); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
