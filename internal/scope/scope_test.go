package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.py"), []byte("print(1)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "sub", "helper.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi\n"), 0o644))

	g, err := New(root)
	require.NoError(t, err)
	return g, root
}

func TestResolve_RelativePathWithinRoot(t *testing.T) {
	g, root := newTestGuard(t)
	resolved, err := g.Resolve("src/main.py")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "main.py"), resolved)
}

func TestResolve_TraversalRejected(t *testing.T) {
	g, _ := newTestGuard(t)
	_, err := g.Resolve("../../etc/passwd")
	var invalid *InvalidPath
	assert.ErrorAs(t, err, &invalid)
}

func TestResolve_AbsolutePathOutsideRootRejected(t *testing.T) {
	g, _ := newTestGuard(t)
	_, err := g.Resolve("/etc/passwd")
	var invalid *InvalidPath
	assert.ErrorAs(t, err, &invalid)
}

func TestResolve_NonexistentDescendantAllowed(t *testing.T) {
	g, root := newTestGuard(t)
	resolved, err := g.Resolve("src/new_file.py")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "new_file.py"), resolved)
}

func TestAllowed_DefaultAllowsEverything(t *testing.T) {
	assert.True(t, Allowed("src/main.py", nil, nil))
}

func TestAllowed_DenyWinsOverAllow(t *testing.T) {
	allow := []string{"**/*.py"}
	deny := []string{"src/sub/**"}
	assert.True(t, Allowed("src/main.py", allow, deny))
	assert.False(t, Allowed("src/sub/helper.py", allow, deny))
}

func TestAllowed_AllowGlobRestrictsExtension(t *testing.T) {
	allow := []string{"**/*.py"}
	assert.True(t, Allowed("src/main.py", allow, nil))
	assert.False(t, Allowed("README.md", allow, nil))
}

func TestCheckScope_ViolationOnDeniedPath(t *testing.T) {
	g, _ := newTestGuard(t)
	err := g.CheckScope("README.md", []string{"**/*.py"}, nil)
	var violation *ScopeViolation
	assert.ErrorAs(t, err, &violation)
}

func TestScan_ExpandsDirectoryAndFiltersByAllow(t *testing.T) {
	g, _ := newTestGuard(t)
	result, err := g.Scan([]string{"src"}, []string{"**/*.py"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Files, 2)
	assert.False(t, result.Truncated)
}

func TestScan_TruncatesAtMaxBytes(t *testing.T) {
	g, _ := newTestGuard(t)
	result, err := g.Scan([]string{"src"}, nil, nil, 5)
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	var total int
	for _, f := range result.Files {
		total += len(f.Bytes)
	}
	assert.LessOrEqual(t, total, 5)
}

func TestScan_MissingPathSkippedNotFatal(t *testing.T) {
	g, _ := newTestGuard(t)
	result, err := g.Scan([]string{"does-not-exist.py"}, nil, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, result.Skipped, "does-not-exist.py")
	assert.Empty(t, result.Files)
}
