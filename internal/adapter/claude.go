package adapter

import (
	"strings"
	"time"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

// claudeAuthMarkers supplements the shared authMarkers with phrasing
// specific to this child CLI's stderr on auth/credit failure.
var claudeAuthMarkers = []string{"please run /login", "credit balance is too low"}

type claudeAdapter struct{}

func newClaudeAdapter() Adapter { return claudeAdapter{} }

func (claudeAdapter) Name() string { return "claude" }

func (claudeAdapter) BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error) {
	argv := []string{codeBin, "--print", "--output-format", "json", "--permission-mode", "acceptEdits"}
	if instr.SelectedModel != "" {
		argv = append(argv, "--model", instr.SelectedModel)
	}
	argv = append(argv, appendScopeFlags(instr.AllowGlobs, instr.DenyGlobs, "--add-dir")...)
	return CommandSpec{
		Argv:       argv,
		Cwd:        instr.RepoRoot,
		StdinBytes: []byte(instr.Rendered),
	}, nil
}

func (claudeAdapter) Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult {
	lower := strings.ToLower(stderr)
	for _, marker := range claudeAuthMarkers {
		if strings.Contains(lower, marker) {
			return ParsedResult{Success: false, Notes: marker, Confidence: Ok}
		}
	}
	return parseWithAuthCheck(stdout, stderr, exitCode)
}

func (claudeAdapter) DefaultTimeout(taskType constants.TaskType) time.Duration {
	return constants.DefaultMaxTimeout(taskType)
}

// appendScopeFlags is the shared helper every adapter that supports a
// directory-scoping flag uses to propagate allow-globs; deny-globs have
// no equivalent in these child CLIs, so they are enforced only by the
// Scope Guard filtering the context bundle before it ever reaches the
// child.
func appendScopeFlags(allow, deny []string, flag string) []string {
	var out []string
	for _, g := range allow {
		out = append(out, flag, g)
	}
	return out
}
