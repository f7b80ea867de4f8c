package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forge-mcp/forge/internal/adapter"
	"github.com/forge-mcp/forge/internal/driver"
	"github.com/forge-mcp/forge/internal/plan"
)

// SimpleTaskInput is coder_simple_task's argument shape (§4.11, §6).
type SimpleTaskInput struct {
	RepoRoot     string   `json:"repo_root" jsonschema:"required,description=Absolute path to the repository the task runs against"`
	Task         string   `json:"task" jsonschema:"required,description=Natural-language description of the change to make"`
	ContextPaths []string `json:"context_paths,omitempty" jsonschema:"description=Files or directories to embed as context"`
	AllowGlobs   []string `json:"allow_globs,omitempty" jsonschema:"description=Glob patterns the child CLI may write within; empty means unrestricted"`
	DenyGlobs    []string `json:"deny_globs,omitempty" jsonschema:"description=Glob patterns the child CLI may never write within"`
}

// StepInput is one step inside a sequential or parallel plan argument.
type StepInput struct {
	ID              string   `json:"id" jsonschema:"required"`
	Title           string   `json:"title,omitempty"`
	Task            string   `json:"task" jsonschema:"required"`
	ContextPaths    []string `json:"context_paths,omitempty"`
	AllowGlobs      []string `json:"allow_globs,omitempty"`
	DenyGlobs       []string `json:"deny_globs,omitempty"`
	TestPlan        []string `json:"test_plan,omitempty" jsonschema:"description=Shell commands verifying this step, run by coder_run_tests"`
	IterationBudget int      `json:"iteration_budget,omitempty"`
}

// SequentialPlanInput is coder_execute_plan_sequential's argument shape.
type SequentialPlanInput struct {
	RepoRoot   string      `json:"repo_root" jsonschema:"required"`
	Steps      []StepInput `json:"steps" jsonschema:"required,description=Ordered steps; a failing step halts the rest"`
	AllowGlobs []string    `json:"allow_globs,omitempty"`
	DenyGlobs  []string    `json:"deny_globs,omitempty"`
}

// ParallelPlanInput is coder_execute_plan_parallel's argument shape.
type ParallelPlanInput struct {
	RepoRoot   string      `json:"repo_root" jsonschema:"required"`
	Steps      []StepInput `json:"steps" jsonschema:"required,description=Independent steps with disjoint scopes"`
	Fanout     int         `json:"fanout,omitempty" jsonschema:"description=Hint for how many steps the child CLI should run concurrently"`
	AllowGlobs []string    `json:"allow_globs,omitempty"`
	DenyGlobs  []string    `json:"deny_globs,omitempty"`
}

// RunTestsInput is coder_run_tests's argument shape, a supplemented
// feature beyond the three spec.md entry points: it runs a step's own
// test_plan commands directly through the Subprocess Driver rather than
// through a child coding CLI.
type RunTestsInput struct {
	RepoRoot string   `json:"repo_root" jsonschema:"required"`
	Commands []string `json:"commands" jsonschema:"required,description=Shell commands to run in sequence, stopping at the first non-zero exit"`
}

// ApplyPatchInput is coder_apply_patch's argument shape, a supplemented
// feature: it applies a unified diff directly against the repository's
// files, scope-checking every target path before any bytes are written,
// rather than delegating to the child CLI.
type ApplyPatchInput struct {
	RepoRoot   string   `json:"repo_root" jsonschema:"required"`
	Patch      string   `json:"patch" jsonschema:"required,description=Unified diff to apply"`
	TestPlan   []string `json:"test_plan,omitempty" jsonschema:"description=Shell commands verifying the patch, run after a clean apply"`
	AllowGlobs []string `json:"allow_globs,omitempty"`
	DenyGlobs  []string `json:"deny_globs,omitempty"`
}

func (s *Server) registerCoderTools() {
	s.mcpServer.AddTool(
		newTool("coder_simple_task", "Run one ad hoc coding task against a repository using the configured child CLI", SimpleTaskInput{}),
		s.handleSimpleTask,
	)
	s.mcpServer.AddTool(
		newTool("coder_execute_plan_sequential", "Run an ordered list of steps as one child CLI invocation, halting on the first failed step", SequentialPlanInput{}),
		s.handleExecuteSequential,
	)
	s.mcpServer.AddTool(
		newTool("coder_execute_plan_parallel", "Run a set of independent steps as one child CLI invocation", ParallelPlanInput{}),
		s.handleExecuteParallel,
	)
	s.mcpServer.AddTool(
		newTool("coder_run_tests", "Run shell test commands directly in a repository, stopping at the first failure", RunTestsInput{}),
		s.handleRunTests,
	)
	s.mcpServer.AddTool(
		newTool("coder_apply_patch", "Apply a unified diff directly against a repository; scope violations are rejected before any bytes are written", ApplyPatchInput{}),
		s.handleApplyPatch,
	)
}

func (s *Server) handleSimpleTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in SimpleTaskInput
	if err := decodeArgs(request, &in); err != nil {
		return toolError("invalid arguments: %v", err)
	}
	if in.RepoRoot == "" || in.Task == "" {
		return toolError("repo_root and task are required")
	}

	metricsLog, err := s.metricsFor(in.RepoRoot)
	if err != nil {
		return toolError("bind repository: %v", err)
	}
	o, err := s.orch.For(in.RepoRoot, s.role, s.settings, metricsLog)
	if err != nil {
		return toolError("bind repository: %v", err)
	}

	result := o.ExecuteSimple(ctx, in.Task, in.ContextPaths, in.AllowGlobs, in.DenyGlobs)
	return resultToolResponse(result)
}

func (s *Server) handleExecuteSequential(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in SequentialPlanInput
	if err := decodeArgs(request, &in); err != nil {
		return toolError("invalid arguments: %v", err)
	}
	if in.RepoRoot == "" || len(in.Steps) == 0 {
		return toolError("repo_root and at least one step are required")
	}

	metricsLog, err := s.metricsFor(in.RepoRoot)
	if err != nil {
		return toolError("bind repository: %v", err)
	}
	o, err := s.orch.For(in.RepoRoot, s.role, s.settings, metricsLog)
	if err != nil {
		return toolError("bind repository: %v", err)
	}

	result := o.ExecuteSequential(ctx, toPlanSteps(in.Steps), in.AllowGlobs, in.DenyGlobs)
	return resultToolResponse(result)
}

func (s *Server) handleExecuteParallel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in ParallelPlanInput
	if err := decodeArgs(request, &in); err != nil {
		return toolError("invalid arguments: %v", err)
	}
	if in.RepoRoot == "" || len(in.Steps) == 0 {
		return toolError("repo_root and at least one step are required")
	}

	metricsLog, err := s.metricsFor(in.RepoRoot)
	if err != nil {
		return toolError("bind repository: %v", err)
	}
	o, err := s.orch.For(in.RepoRoot, s.role, s.settings, metricsLog)
	if err != nil {
		return toolError("bind repository: %v", err)
	}

	result := o.ExecuteParallel(ctx, toPlanSteps(in.Steps), in.Fanout, in.AllowGlobs, in.DenyGlobs)
	return resultToolResponse(result)
}

// handleRunTests runs commands directly through the Subprocess Driver,
// bypassing the child coding CLI entirely: a step's test_plan is meant
// to verify code a CLI already wrote, not to be interpreted by one.
func (s *Server) handleRunTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in RunTestsInput
	if err := decodeArgs(request, &in); err != nil {
		return toolError("invalid arguments: %v", err)
	}
	if in.RepoRoot == "" || len(in.Commands) == 0 {
		return toolError("repo_root and at least one command are required")
	}

	d := driver.New(s.logger)
	var transcript strings.Builder
	for i, command := range in.Commands {
		run := d.Run(ctx, adapter.CommandSpec{
			Argv: []string{"/bin/sh", "-c", command},
			Cwd:  in.RepoRoot,
		}, driver.Deadlines{MaxSec: 300, InactivitySec: 60})

		fmt.Fprintf(&transcript, "$ %s\n%s%s\n", command, run.Stdout, run.Stderr)
		if run.Outcome != driver.OutcomeExited || run.ExitCode != 0 {
			fmt.Fprintf(&transcript, "(stopped after command %d/%d: %s)\n", i+1, len(in.Commands), run.Outcome)
			return mcp.NewToolResultText(transcript.String()), nil
		}
	}
	return mcp.NewToolResultText(transcript.String()), nil
}

func (s *Server) handleApplyPatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in ApplyPatchInput
	if err := decodeArgs(request, &in); err != nil {
		return toolError("invalid arguments: %v", err)
	}
	if in.RepoRoot == "" || in.Patch == "" {
		return toolError("repo_root and patch are required")
	}

	metricsLog, err := s.metricsFor(in.RepoRoot)
	if err != nil {
		return toolError("bind repository: %v", err)
	}
	o, err := s.orch.For(in.RepoRoot, s.role, s.settings, metricsLog)
	if err != nil {
		return toolError("bind repository: %v", err)
	}

	result := o.ApplyPatch(ctx, in.Patch, in.AllowGlobs, in.DenyGlobs, in.TestPlan)
	return resultToolResponse(result)
}

func toPlanSteps(in []StepInput) []plan.Step {
	steps := make([]plan.Step, 0, len(in))
	for _, s := range in {
		steps = append(steps, plan.Step{
			ID:              s.ID,
			Title:           s.Title,
			Task:            s.Task,
			ContextPaths:    s.ContextPaths,
			AllowGlobs:      s.AllowGlobs,
			DenyGlobs:       s.DenyGlobs,
			TestPlan:        s.TestPlan,
			IterationBudget: s.IterationBudget,
		})
	}
	return steps
}

// resultToolResponse renders a PlanResult as the tool's text response.
// A failed PlanResult is still a successful tool call from MCP's
// perspective — the daemon did its job and reported a failure, it did
// not error out — so this only ever returns NewToolResultText.
func resultToolResponse(result plan.PlanResult) (*mcp.CallToolResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "overall_status: %s\n", result.OverallStatus)
	if len(result.FilesModified) > 0 {
		fmt.Fprintf(&b, "files_modified: %s\n", strings.Join(result.FilesModified, ", "))
	}
	for _, step := range result.Steps {
		fmt.Fprintf(&b, "- step %s: %s", step.ID, step.Status)
		if step.Summary != "" {
			fmt.Fprintf(&b, " — %s", step.Summary)
		}
		b.WriteString("\n")
	}
	if result.Notes != "" {
		fmt.Fprintf(&b, "notes: %s\n", result.Notes)
	}
	fmt.Fprintf(&b, "duration_ms: %d\n", result.DurationMS)
	return mcp.NewToolResultText(b.String()), nil
}
