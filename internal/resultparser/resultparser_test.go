package resultparser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forge-mcp/forge/internal/plan"
)

func TestParse_FencedJSONBlock(t *testing.T) {
	stdout := "Here's what I did:\n```json\n{\"overall_status\":\"success\",\"steps\":[{\"id\":\"s1\",\"status\":\"ok\",\"summary\":\"done\",\"touched_paths\":[\"a.py\"]}],\"files_modified\":[\"a.py\"]}\n```\nAll set.\n"
	result := Parse(stdout)
	assert.Equal(t, plan.OverallSuccess, result.OverallStatus)
	assert.Equal(t, []string{"a.py"}, result.FilesModified)
}

func TestParse_BalancedBraceScanAmongProse(t *testing.T) {
	stdout := `I'll explain my reasoning {not json} and then the result: {"overall_status":"partial","steps":[{"id":"s1","status":"fail","summary":"tests red"}]}`
	result := Parse(stdout)
	assert.Equal(t, plan.OverallPartial, result.OverallStatus)
}

func TestParse_RawJSONWholeOutput(t *testing.T) {
	stdout := `{"overall_status":"failed","steps":[{"id":"s1","status":"error","summary":"crashed"}]}`
	result := Parse(stdout)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
}

func TestParse_FreeTextFallbackInfersTouchedPaths(t *testing.T) {
	stdout := "I wrote hello.py with the requested contents and ran the tests."
	result := Parse(stdout)
	assert.Equal(t, plan.OverallPartial, result.OverallStatus)
	assert.Equal(t, []string{"hello.py"}, result.FilesModified)
}

func TestParse_FreeTextFallbackNoPathsMeansFailed(t *testing.T) {
	stdout := "Something went wrong and I could not proceed."
	result := Parse(stdout)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
	assert.Empty(t, result.FilesModified)
}

func TestParse_RejectsPayloadMissingOverallStatus(t *testing.T) {
	stdout := `{"steps":[{"id":"s1","status":"ok"}]}`
	result := Parse(stdout)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus, "invalid payload falls through to free-text, which finds no verb+path")
}

func TestParse_RejectsEnumViolationFallsThrough(t *testing.T) {
	stdout := `{"overall_status":"maybe","steps":[]}`
	result := Parse(stdout)
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
}

func TestFailed_TruncatesLongOutput(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'x'
	}
	result := Failed(string(long))
	assert.Equal(t, plan.OverallFailed, result.OverallStatus)
	assert.Contains(t, result.Notes, "truncated")
}
