package adapter

import (
	"time"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

// genericAdapter is the §4.4 fallback for any CODE_BIN whose basename
// matches none of the registered substrings: it passes the prompt on
// stdin and parses only exit_code==0, with no stderr auth-scanning and
// no canonical-JSON attempt of its own.
type genericAdapter struct{}

func newGenericAdapter() Adapter { return genericAdapter{} }

func (genericAdapter) Name() string { return "generic" }

func (genericAdapter) BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error) {
	return CommandSpec{
		Argv:       []string{codeBin},
		Cwd:        instr.RepoRoot,
		StdinBytes: []byte(instr.Rendered),
	}, nil
}

func (genericAdapter) Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult {
	if exitCode != 0 {
		return ParsedResult{Success: false, Notes: stderr, Confidence: NoPayload}
	}
	return ParsedResult{Success: true, Summary: stdout, Confidence: Ok}
}

func (genericAdapter) DefaultTimeout(taskType constants.TaskType) time.Duration {
	return constants.DefaultMaxTimeout(taskType)
}
