package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/orchestrator"
	"github.com/forge-mcp/forge/internal/plan"
)

func newTestServer(t *testing.T, codeBin string) (*Server, string) {
	t.Helper()
	root := t.TempDir()

	s, err := New(Config{
		Role:         constants.RoleCoder,
		Orchestrator: orchestrator.NewRegistry(zerolog.Nop()),
		Settings:     &config.Settings{CodeBin: codeBin},
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, root
}

func callToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestHandleSimpleTask_RequiresRepoRootAndTask(t *testing.T) {
	s, _ := newTestServer(t, "some-unknown-tool")
	result, err := s.handleSimpleTask(context.Background(), callToolRequest("coder_simple_task", map[string]any{}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestHandleSimpleTask_ScopeViolationSurfacesInText(t *testing.T) {
	s, root := newTestServer(t, "some-unknown-tool")
	result, err := s.handleSimpleTask(context.Background(), callToolRequest("coder_simple_task", map[string]any{
		"repo_root":     root,
		"task":          "do something",
		"context_paths": []any{"/etc/passwd"},
	}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, textOf(t, result), "ScopeViolation")
}

func TestHandleSimpleTask_GenericAdapterQuickSuccess(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "fake-generic.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat >/dev/null\nexit 0\n"), 0o755))

	s, err := New(Config{
		Role:         constants.RoleCoder,
		Orchestrator: orchestrator.NewRegistry(zerolog.Nop()),
		Settings:     &config.Settings{CodeBin: script},
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	result, err := s.handleSimpleTask(context.Background(), callToolRequest("coder_simple_task", map[string]any{
		"repo_root": root,
		"task":      "anything",
	}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), string(plan.OverallSuccess))
}

func TestHandleRunTests_StopsAtFirstFailure(t *testing.T) {
	s, root := newTestServer(t, "some-unknown-tool")
	result, err := s.handleRunTests(context.Background(), callToolRequest("coder_run_tests", map[string]any{
		"repo_root": root,
		"commands":  []any{"echo first", "exit 1", "echo never"},
	}))
	require.NoError(t, err)
	require.NotNil(t, result)
	text := textOf(t, result)
	assert.Contains(t, text, "first")
	assert.NotContains(t, text, "never")
	assert.Contains(t, text, "stopped after command 2/3")
}

func TestToPlanSteps_PreservesFieldsInOrder(t *testing.T) {
	steps := toPlanSteps([]StepInput{
		{ID: "a", Task: "do a", TestPlan: []string{"go test ./..."}},
		{ID: "b", Task: "do b", IterationBudget: 3},
	})
	require.Len(t, steps, 2)
	assert.Equal(t, "a", steps[0].ID)
	assert.Equal(t, []string{"go test ./..."}, steps[0].TestPlan)
	assert.Equal(t, 3, steps[1].IterationBudget)
}

func TestNew_BuildsServerForStubOnlyRole(t *testing.T) {
	s, err := New(Config{
		Role:         constants.RoleResearcher,
		Orchestrator: orchestrator.NewRegistry(zerolog.Nop()),
		Settings:     &config.Settings{},
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return textContent.Text
}
