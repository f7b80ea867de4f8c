package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/adapter"
	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/driver"
	"github.com/forge-mcp/forge/internal/metrics"
	"github.com/forge-mcp/forge/internal/plan"
	"github.com/forge-mcp/forge/internal/scope"
)

func newTestOrchestrator(t *testing.T, codeBin string) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := scope.New(root)
	require.NoError(t, err)

	metricsDir := t.TempDir()
	log, err := metrics.Open(metricsDir)
	require.NoError(t, err)

	settings := &config.Settings{CodeBin: codeBin}

	o := New(guard, adapter.NewRegistry(), driver.New(zerolog.Nop()), log, settings, constants.RoleCoder, zerolog.Nop())
	return o, root
}

func TestExecuteSimple_ScopeViolationNeverSpawns(t *testing.T) {
	o, _ := newTestOrchestrator(t, "some-unknown-tool")
	result := o.ExecuteSimple(context.Background(), "do something", []string{"/etc/passwd"}, nil, nil)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
	assert.Contains(t, result.Notes, "ScopeViolation")
}

func TestExecuteSimple_GenericAdapterQuickSuccess(t *testing.T) {
	// The generic adapter feeds the rendered instruction on stdin and
	// trusts exit_code==0 directly (§4.4); a fake "child CLI" that
	// reads and discards stdin, then exits 0, is enough to exercise
	// that path without needing a real coding CLI installed.
	root := t.TempDir()
	script := filepath.Join(root, "fake-generic.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat >/dev/null\nexit 0\n"), 0o755))

	o, _ := newTestOrchestrator(t, script)
	result := o.ExecuteSimple(context.Background(), "anything", nil, nil, nil)
	assert.Equal(t, plan.OverallSuccess, result.OverallStatus)
}

func TestExecuteSimple_FiltersOutOfScopeTouchedPaths(t *testing.T) {
	root := t.TempDir()
	guard, err := scope.New(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "in_scope.py"), []byte("x=1"), 0o644))

	metricsDir := t.TempDir()
	log, err := metrics.Open(metricsDir)
	require.NoError(t, err)

	settings := &config.Settings{CodeBin: "claude"}
	o := New(guard, adapter.NewRegistry(), driver.New(zerolog.Nop()), log, settings, constants.RoleCoder, zerolog.Nop())

	// The claude adapter reads argv[0] as the binary to exec; point it
	// at a script that emits a canonical payload naming both an
	// in-scope and an out-of-scope path.
	script := filepath.Join(root, "fake-claude.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\ncat <<'EOF'\n"+
			`{"overall_status":"success","steps":[{"id":"simple","status":"ok","summary":"done","touched_paths":["in_scope.py","/etc/passwd"]}],"files_modified":["in_scope.py","/etc/passwd"]}`+
			"\nEOF\n"), 0o755))
	settings.CodeBin = script

	result := o.ExecuteSimple(context.Background(), "write files", nil, nil, nil)
	assert.Equal(t, plan.OverallSuccess, result.OverallStatus)
	assert.Equal(t, []string{"in_scope.py"}, result.FilesModified)
}

func TestExecuteSequential_PartialStatusPreservesRealPerStepResults(t *testing.T) {
	root := t.TempDir()
	guard, err := scope.New(root)
	require.NoError(t, err)

	metricsDir := t.TempDir()
	log, err := metrics.Open(metricsDir)
	require.NoError(t, err)

	settings := &config.Settings{CodeBin: "claude"}
	o := New(guard, adapter.NewRegistry(), driver.New(zerolog.Nop()), log, settings, constants.RoleCoder, zerolog.Nop())

	// A child reporting overall_status="partial" with a mix of ok/fail
	// steps must surface exactly that mix, not three uniform StepOK (or
	// StepError) results fabricated from a collapsed Success bool.
	script := filepath.Join(root, "fake-claude.sh")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\ncat <<'EOF'\n"+
			`{"overall_status":"partial","steps":[`+
			`{"id":"step1","status":"ok","summary":"wrote a"},`+
			`{"id":"step2","status":"ok","summary":"wrote b"},`+
			`{"id":"step3","status":"fail","summary":"tests failed"}`+
			`]}`+
			"\nEOF\n"), 0o755))
	settings.CodeBin = script

	steps := []plan.Step{{ID: "step1"}, {ID: "step2"}, {ID: "step3"}}
	result := o.ExecuteSequential(context.Background(), steps, nil, nil)

	assert.Equal(t, plan.OverallPartial, result.OverallStatus)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, plan.StepOK, result.Steps[0].Status)
	assert.Equal(t, plan.StepOK, result.Steps[1].Status)
	assert.Equal(t, plan.StepFail, result.Steps[2].Status)
}

func TestApplyPatch_RejectsOutOfScopeTargetBeforeWritingAnything(t *testing.T) {
	o, root := newTestOrchestrator(t, "some-unknown-tool")
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("original\n"), 0o644))

	diff := "" +
		"--- a/keep.txt\n" +
		"+++ b/keep.txt\n" +
		"@@ -1 +1 @@\n" +
		"-original\n" +
		"+changed\n" +
		"--- /dev/null\n" +
		"+++ b/../outside.txt\n" +
		"@@ -0,0 +1 @@\n" +
		"+sneaky\n"

	result := o.ApplyPatch(context.Background(), diff, nil, nil, nil)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
	assert.Contains(t, result.Notes, "ScopeViolation")

	data, err := os.ReadFile(filepath.Join(root, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data), "no file may be modified once any target in the patch is out of scope")
}

func TestRegistry_CacheInvalidatesOnGenerationChange(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(zerolog.Nop())
	metricsDir := t.TempDir()
	log, err := metrics.Open(metricsDir)
	require.NoError(t, err)

	s1, err := config.Load("")
	require.NoError(t, err)
	o1, err := reg.For(root, constants.RoleCoder, s1, log)
	require.NoError(t, err)

	s2, err := config.Load("")
	require.NoError(t, err)
	o2, err := reg.For(root, constants.RoleCoder, s2, log)
	require.NoError(t, err)

	assert.NotSame(t, o1, o2, "a new Settings generation should rebuild the cached orchestrator")

	o1Again, err := reg.For(root, constants.RoleCoder, s1, log)
	require.NoError(t, err)
	assert.Same(t, o1, o1Again, "the same generation should hit the cache")
}
