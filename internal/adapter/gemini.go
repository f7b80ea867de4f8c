package adapter

import (
	"time"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

type geminiAdapter struct{}

func newGeminiAdapter() Adapter { return geminiAdapter{} }

func (geminiAdapter) Name() string { return "gemini" }

func (geminiAdapter) BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error) {
	argv := []string{codeBin, "--yolo"}
	if instr.SelectedModel != "" {
		argv = append(argv, "--model", instr.SelectedModel)
	}
	return CommandSpec{
		Argv:       argv,
		Cwd:        instr.RepoRoot,
		StdinBytes: []byte(instr.Rendered),
	}, nil
}

func (geminiAdapter) Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult {
	return parseWithAuthCheck(stdout, stderr, exitCode)
}

func (geminiAdapter) DefaultTimeout(taskType constants.TaskType) time.Duration {
	return constants.DefaultMaxTimeout(taskType)
}

// qwenAdapter follows the same CLI conventions as gemini (the qwen-code
// CLI is a fork of the gemini CLI), so it reuses gemini's command shape
// with its own provider namespace on the model flag.
type qwenAdapter struct{}

func newQwenAdapter() Adapter { return qwenAdapter{} }

func (qwenAdapter) Name() string { return "qwen" }

func (qwenAdapter) BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error) {
	argv := []string{codeBin, "--yolo"}
	if instr.SelectedModel != "" {
		argv = append(argv, "--model", "qwen/"+instr.SelectedModel)
	}
	return CommandSpec{
		Argv:       argv,
		Cwd:        instr.RepoRoot,
		StdinBytes: []byte(instr.Rendered),
	}, nil
}

func (qwenAdapter) Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult {
	return parseWithAuthCheck(stdout, stderr, exitCode)
}

func (qwenAdapter) DefaultTimeout(taskType constants.TaskType) time.Duration {
	return constants.DefaultMaxTimeout(taskType)
}
