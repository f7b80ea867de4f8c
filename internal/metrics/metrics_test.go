package metrics

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

func sampleMetric(taskID string, success bool) plan.TaskMetric {
	return plan.TaskMetric{
		TaskID:        taskID,
		UTCTimestamp:  "2026-07-31T00:00:00Z",
		Role:          constants.RoleCoder,
		Tool:          "coder_simple_task",
		Model:         "claude-sonnet",
		InputTokens:   100,
		OutputTokens:  50,
		TotalCostUSD:  0.01,
		DurationSec:   1.5,
		Success:       success,
		ExecutionMode: plan.ExecutionModeQuick,
		RepoRoot:      "/tmp/r",
		ScopeGlobs:    "**/*.py",
	}
}

func TestOpen_CreatesHeaderOnFirstCall(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	rows, err := l.Rows()
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.FileExists(t, filepath.Join(dir, "tasks.csv"))
}

func TestRecord_AppendsRoundTrippableRow(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, l.Record(sampleMetric("task-1", true)))
	require.NoError(t, l.Record(sampleMetric("task-2", false)))

	rows, err := l.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "task-1", rows[0].TaskID)
	assert.True(t, rows[0].Success)
	assert.Equal(t, "task-2", rows[1].TaskID)
	assert.False(t, rows[1].Success)
	assert.Equal(t, constants.RoleCoder, rows[0].Role)
	assert.Equal(t, 100, rows[0].InputTokens)
}

func TestSummarize_AggregatesCountsAndCost(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, l.Record(sampleMetric("task-1", true)))
	require.NoError(t, l.Record(sampleMetric("task-2", false)))

	summary, err := l.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TaskCount)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.InDelta(t, 0.02, summary.TotalCostUSD, 0.0001)
}

func TestRecent_ReturnsLastNRows(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(sampleMetric(string(rune('a'+i)), true)))
	}

	recent, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].TaskID)
	assert.Equal(t, "e", recent[1].TaskID)
}
