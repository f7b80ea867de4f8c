package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/plan"
	"github.com/forge-mcp/forge/internal/scope"
)

func TestApply_ModifiesExistingFileInPlace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("hello\n"), 0o644))
	guard, err := scope.New(root)
	require.NoError(t, err)

	diff := "" +
		"--- a/greeting.txt\n" +
		"+++ b/greeting.txt\n" +
		"@@ -1 +1 @@\n" +
		"-hello\n" +
		"+goodbye\n"

	result := Apply(guard, diff, nil, nil)
	require.Equal(t, plan.OverallSuccess, result.OverallStatus)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, plan.StepOK, result.Steps[0].Status)
	assert.Equal(t, []string{"greeting.txt"}, result.FilesModified)

	data, err := os.ReadFile(filepath.Join(root, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "goodbye\n", string(data))
}

func TestApply_RejectsPatchOutsideAllowGlobsBeforeWriting(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "locked.txt"), []byte("do not touch\n"), 0o644))
	guard, err := scope.New(root)
	require.NoError(t, err)

	diff := "" +
		"--- a/locked.txt\n" +
		"+++ b/locked.txt\n" +
		"@@ -1 +1 @@\n" +
		"-do not touch\n" +
		"+touched\n"

	result := Apply(guard, diff, []string{"other/**"}, nil)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
	assert.Contains(t, result.Notes, "ScopeViolation")

	data, err := os.ReadFile(filepath.Join(root, "locked.txt"))
	require.NoError(t, err)
	assert.Equal(t, "do not touch\n", string(data))
}

func TestApply_CreatesNewFile(t *testing.T) {
	root := t.TempDir()
	guard, err := scope.New(root)
	require.NoError(t, err)

	diff := "" +
		"--- /dev/null\n" +
		"+++ b/new.txt\n" +
		"@@ -0,0 +1 @@\n" +
		"+brand new\n"

	result := Apply(guard, diff, nil, nil)
	require.Equal(t, plan.OverallSuccess, result.OverallStatus)

	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "brand new\n", string(data))
}

func TestApply_EmptyDiffFails(t *testing.T) {
	root := t.TempDir()
	guard, err := scope.New(root)
	require.NoError(t, err)

	result := Apply(guard, "not a diff at all", nil, nil)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
}
