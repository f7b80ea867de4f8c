// Package main provides the forge-prompts daemon binary.
package main

import (
	"fmt"
	"os"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/rolemain"
)

func main() {
	if err := rolemain.Run(constants.RolePrompts); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
