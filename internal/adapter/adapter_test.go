package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/plan"
)

func TestRegistry_SelectsByBasenameSubstring(t *testing.T) {
	r := NewRegistry()

	cases := map[string]string{
		"/usr/local/bin/claude":        "claude",
		"claude":                       "claude",
		"/opt/aider/bin/aider":         "aider",
		"opencode":                     "opencode",
		"gemini":                       "gemini",
		"qwen-code":                    "qwen",
		"some-unknown-tool":            "generic",
		"":                             "generic",
	}
	for bin, want := range cases {
		got := r.For(bin)
		assert.Equal(t, want, got.Name(), "CODE_BIN=%q", bin)
	}
}

func TestGenericAdapter_PassesPromptOnStdinAndUsesExitCodeOnly(t *testing.T) {
	a := newGenericAdapter()
	instr := plan.Instruction{RepoRoot: "/tmp/r", Rendered: "do the thing"}

	cmd, err := a.BuildCommand("some-unknown-tool", instr)
	assert.NoError(t, err)
	assert.Equal(t, []byte("do the thing"), cmd.StdinBytes)

	result := a.Parse("ok", "401 Unauthorized", 0, "/tmp/r")
	assert.True(t, result.Success, "generic adapter trusts exit_code==0 even with auth text in stderr")
}

func TestClaudeAdapter_BuildsModelAndScopeFlags(t *testing.T) {
	a := newClaudeAdapter()
	instr := plan.Instruction{
		RepoRoot:      "/tmp/r",
		Rendered:      "instruction body",
		SelectedModel: "claude-sonnet-4",
		AllowGlobs:    []string{"**/*.go"},
	}
	cmd, err := a.BuildCommand("claude", instr)
	assert.NoError(t, err)
	assert.Contains(t, cmd.Argv, "--model")
	assert.Contains(t, cmd.Argv, "claude-sonnet-4")
	assert.Contains(t, cmd.Argv, "--add-dir")
}

func TestClaudeAdapter_DowngradesOnAuthFailureDespiteExitZero(t *testing.T) {
	a := newClaudeAdapter()
	result := a.Parse("", "Invalid API key · Please run /login", 0, "/tmp/r")
	assert.False(t, result.Success)
}

func TestParseWithAuthCheck_ExtractsCanonicalPayload(t *testing.T) {
	stdout := `{"overall_status":"success","steps":[{"id":"s1","status":"ok","summary":"did it","touched_paths":["a.py"]}],"files_modified":["a.py"]}`
	result := parseWithAuthCheck(stdout, "", 0)
	assert.True(t, result.Success)
	assert.Equal(t, Ok, result.Confidence)
	assert.Equal(t, []string{"a.py"}, result.TouchedPaths)
}

func TestParseWithAuthCheck_RateLimitMarkerDowngradesRegardlessOfExitCode(t *testing.T) {
	result := parseWithAuthCheck("", "Error: rate limit exceeded, try again later", 0)
	assert.False(t, result.Success)
	assert.Equal(t, Ok, result.Confidence)
}

func TestParseWithAuthCheck_NoPayloadOnCleanExitWithoutJSON(t *testing.T) {
	result := parseWithAuthCheck("some prose with no json", "", 0)
	assert.Equal(t, NoPayload, result.Confidence)
}

func TestParseWithAuthCheck_LowConfidenceOnNonZeroExitWithoutJSON(t *testing.T) {
	result := parseWithAuthCheck("partial output", "boom", 1)
	assert.Equal(t, LowConfidence, result.Confidence)
	assert.False(t, result.Success)
}

func TestParseWithAuthCheck_PartialStatusPreservesPerStepMix(t *testing.T) {
	// overall_status="partial" with two ok steps and one fail must not
	// collapse into a single Success bool that later gets fanned back
	// out as three uniform StepOK results (§8: overall_status=success
	// iff every step is ok).
	stdout := `{"overall_status":"partial","steps":[` +
		`{"id":"s1","status":"ok","summary":"wrote a"},` +
		`{"id":"s2","status":"ok","summary":"wrote b"},` +
		`{"id":"s3","status":"fail","summary":"tests failed"}` +
		`]}`
	result := parseWithAuthCheck(stdout, "", 0)
	assert.Equal(t, Ok, result.Confidence)
	assert.False(t, result.Success, "a partial run with a failed step must not be reported as Success")
	require.Len(t, result.Steps, 3)
	assert.Equal(t, plan.StepOK, result.Steps[0].Status)
	assert.Equal(t, plan.StepOK, result.Steps[1].Status)
	assert.Equal(t, plan.StepFail, result.Steps[2].Status)
}
