package adapter

import (
	"os"
	"time"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

// aiderAdapter targets aider, which wants the prompt as a message file
// rather than stdin and exposes real --read/--file scope flags.
type aiderAdapter struct{}

func newAiderAdapter() Adapter { return aiderAdapter{} }

func (aiderAdapter) Name() string { return "aider" }

func (aiderAdapter) BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error) {
	f, err := os.CreateTemp("", "forge-instruction-*.md")
	if err != nil {
		return CommandSpec{}, err
	}
	defer f.Close()
	if _, err := f.WriteString(instr.Rendered); err != nil {
		return CommandSpec{}, err
	}

	argv := []string{
		codeBin,
		"--yes-always",
		"--no-auto-commits",
		"--no-check-update",
		"--message-file", f.Name(),
	}
	if instr.SelectedModel != "" {
		argv = append(argv, "--model", instr.SelectedModel)
	}
	argv = append(argv, appendScopeFlags(instr.AllowGlobs, instr.DenyGlobs, "--file")...)

	return CommandSpec{Argv: argv, Cwd: instr.RepoRoot}, nil
}

func (aiderAdapter) Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult {
	return parseWithAuthCheck(stdout, stderr, exitCode)
}

func (aiderAdapter) DefaultTimeout(taskType constants.TaskType) time.Duration {
	return constants.DefaultMaxTimeout(taskType)
}

// opencodeAdapter targets the opencode CLI's non-interactive run mode.
type opencodeAdapter struct{}

func newOpenCodeAdapter() Adapter { return opencodeAdapter{} }

func (opencodeAdapter) Name() string { return "opencode" }

func (opencodeAdapter) BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error) {
	argv := []string{codeBin, "run", "--non-interactive", "--no-confirm"}
	if instr.SelectedModel != "" {
		argv = append(argv, "--model", instr.SelectedModel)
	}
	return CommandSpec{
		Argv:       argv,
		Cwd:        instr.RepoRoot,
		StdinBytes: []byte(instr.Rendered),
	}, nil
}

func (opencodeAdapter) Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult {
	return parseWithAuthCheck(stdout, stderr, exitCode)
}

func (opencodeAdapter) DefaultTimeout(taskType constants.TaskType) time.Duration {
	return constants.DefaultMaxTimeout(taskType)
}
