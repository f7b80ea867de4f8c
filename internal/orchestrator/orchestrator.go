// Package orchestrator implements the Plan Orchestrator (C8): the three
// tool entry points (execute_simple/execute_sequential/execute_parallel)
// that scope-check inputs, render a prompt, run one subprocess per plan
// invocation, parse its output, and aggregate a PlanResult plus a
// TaskMetric — never spawning one subprocess per step.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forge-mcp/forge/internal/adapter"
	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/driver"
	"github.com/forge-mcp/forge/internal/metrics"
	"github.com/forge-mcp/forge/internal/patch"
	"github.com/forge-mcp/forge/internal/plan"
	"github.com/forge-mcp/forge/internal/prompt"
	"github.com/forge-mcp/forge/internal/resultparser"
	"github.com/forge-mcp/forge/internal/scope"
)

// Orchestrator wires the Scope Guard, Adapter Registry, Prompt Builder,
// Driver, and Result Parser together for one repository's invocations.
type Orchestrator struct {
	guard    *scope.Guard
	builder  *prompt.Builder
	registry *adapter.Registry
	driver   *driver.Driver
	metrics  *metrics.Log
	settings *config.Settings
	role     constants.Role
	logger   zerolog.Logger
}

// New returns an Orchestrator for one repository and role.
func New(guard *scope.Guard, registry *adapter.Registry, d *driver.Driver, log *metrics.Log, settings *config.Settings, role constants.Role, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		guard:    guard,
		builder:  prompt.New(guard),
		registry: registry,
		driver:   d,
		metrics:  log,
		settings: settings,
		role:     role,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// ExecuteSimple wraps task as a single-step quick plan (§4.8).
func (o *Orchestrator) ExecuteSimple(ctx context.Context, task string, contextPaths, allowGlobs, denyGlobs []string) plan.PlanResult {
	p := plan.SimplePlan{Step: plan.Step{ID: "simple", Title: "simple task", Task: task, ContextPaths: contextPaths}}
	return o.execute(ctx, p, constants.TaskQuick, allowGlobs, denyGlobs, "execute_simple")
}

// ExecuteSequential runs an ordered plan as one child invocation.
func (o *Orchestrator) ExecuteSequential(ctx context.Context, steps []plan.Step, allowGlobs, denyGlobs []string) plan.PlanResult {
	p := plan.SequentialPlan{StepList: steps}
	return o.execute(ctx, p, constants.TaskSequential, allowGlobs, denyGlobs, "execute_sequential")
}

// ExecuteParallel runs an independent-steps plan as one child invocation.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, steps []plan.Step, fanout int, allowGlobs, denyGlobs []string) plan.PlanResult {
	p := plan.ParallelPlan{StepList: steps, Fanout: fanout}
	return o.execute(ctx, p, constants.TaskParallel, allowGlobs, denyGlobs, "execute_parallel")
}

func (o *Orchestrator) execute(ctx context.Context, p plan.Plan, taskType constants.TaskType, allowGlobs, denyGlobs []string, tool string) plan.PlanResult {
	start := time.Now()
	taskID := uuid.NewString()

	if err := o.scopeCheck(p, allowGlobs, denyGlobs); err != nil {
		// The Orchestrator surfaces every pre-spawn scope rejection —
		// whether C1 classified it as InvalidPath (traversal) or
		// ScopeViolation (glob mismatch) — under the single
		// "ScopeViolation" label callers see in error_message, since
		// both mean the same thing to a caller: nothing was spawned.
		result := plan.PlanResult{OverallStatus: plan.OverallFailed, Notes: fmt.Sprintf("ScopeViolation: %v", err)}
		o.recordMetric(taskID, tool, "", taskType, result, 0, err)
		return result
	}

	instr := plan.Instruction{
		RepoRoot:      o.guard.RepoRoot(),
		Plan:          p,
		ExecutionMode: plan.ExecutionModeFull,
		AllowGlobs:    allowGlobs,
		DenyGlobs:     denyGlobs,
		SelectedModel: o.settings.ModelForRole(o.role),
		TaskType:      taskType,
	}

	rendered, err := o.builder.Render(instr)
	if err != nil {
		result := plan.PlanResult{OverallStatus: plan.OverallFailed, Notes: fmt.Sprintf("render prompt: %v", err)}
		o.recordMetric(taskID, tool, instr.SelectedModel, taskType, result, time.Since(start).Seconds(), err)
		return result
	}

	a := o.registry.For(o.settings.CodeBin)
	command, err := a.BuildCommand(o.settings.CodeBin, rendered)
	if err != nil {
		result := plan.PlanResult{OverallStatus: plan.OverallFailed, Notes: fmt.Sprintf("build command: %v", err)}
		o.recordMetric(taskID, tool, instr.SelectedModel, taskType, result, time.Since(start).Seconds(), err)
		return result
	}

	maxSec := minPositive(o.settings.MaxTimeFor(taskType), int(a.DefaultTimeout(taskType).Seconds()))
	deadlines := driver.Deadlines{
		MaxSec:        maxSec,
		InactivitySec: o.settings.InactivityFor(taskType),
	}

	runResult := o.driver.Run(ctx, command, deadlines)

	result := o.aggregate(a, runResult, p)
	result = o.filterTouchedPaths(result)

	duration := time.Since(start)
	result.DurationMS = duration.Milliseconds()
	result.ModelUsed = instr.SelectedModel

	o.recordMetric(taskID, tool, instr.SelectedModel, taskType, result, duration.Seconds(), nil)
	return result
}

// ApplyPatch applies a unified diff mechanically — no child CLI
// invocation — scope-checking every target path before any bytes are
// written, then runs testPlan (if supplied) against the resulting tree.
// This is the one coder-role operation that edits the working tree
// directly rather than delegating to an Adapter.
func (o *Orchestrator) ApplyPatch(ctx context.Context, diffText string, allowGlobs, denyGlobs, testPlan []string) plan.PlanResult {
	start := time.Now()
	taskID := uuid.NewString()

	result := patch.Apply(o.guard, diffText, allowGlobs, denyGlobs)
	result = o.filterTouchedPaths(result)

	if result.OverallStatus != plan.OverallFailed && len(testPlan) > 0 {
		result = o.runTestPlan(ctx, result, testPlan)
	}

	duration := time.Since(start)
	result.DurationMS = duration.Milliseconds()
	o.recordMetric(taskID, "apply_patch", "", constants.TaskQuick, result, duration.Seconds(), nil)
	return result
}

// runTestPlan runs a patch's verifying shell commands directly through
// the Subprocess Driver, stopping at the first failure, and folds the
// outcome into the patch's own PlanResult rather than spawning a second
// tool round-trip.
func (o *Orchestrator) runTestPlan(ctx context.Context, result plan.PlanResult, commands []string) plan.PlanResult {
	var transcript strings.Builder
	for i, command := range commands {
		run := o.driver.Run(ctx, adapter.CommandSpec{
			Argv: []string{"/bin/sh", "-c", command},
			Cwd:  o.guard.RepoRoot(),
		}, driver.Deadlines{MaxSec: 300, InactivitySec: 60})

		fmt.Fprintf(&transcript, "$ %s\n%s%s\n", command, run.Stdout, run.Stderr)
		if run.Outcome != driver.OutcomeExited || run.ExitCode != 0 {
			fmt.Fprintf(&transcript, "(test plan stopped after command %d/%d: %s)\n", i+1, len(commands), run.Outcome)
			result.OverallStatus = plan.OverallPartial
			result.Notes = strings.TrimSpace(result.Notes + " test_plan failed:\n" + transcript.String())
			return result
		}
	}
	result.Notes = strings.TrimSpace(result.Notes + " test_plan passed:\n" + transcript.String())
	return result
}

// scopeCheck verifies every context path and glob in the plan resolves
// within repo_root and is allow/deny-permitted before anything is
// spawned (§4.8 step 1); both InvalidPath and ScopeViolation are fatal
// here, unlike a context path that merely doesn't exist (Scan tolerates
// that later).
func (o *Orchestrator) scopeCheck(p plan.Plan, allow, deny []string) error {
	for _, step := range p.Steps() {
		for _, path := range step.ContextPaths {
			if err := o.guard.CheckScope(path, firstNonEmpty(step.AllowGlobs, allow), firstNonEmpty(step.DenyGlobs, deny)); err != nil {
				return err
			}
		}
	}
	return nil
}

func firstNonEmpty(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

// aggregate turns the adapter's reading (possibly delegating to the
// Result Parser cascade on low confidence or no payload) into a
// PlanResult, always producing a best-effort result rather than
// erroring (§4.8's retry-policy note).
func (o *Orchestrator) aggregate(a adapter.Adapter, run driver.RunResult, p plan.Plan) plan.PlanResult {
	if run.Outcome == driver.OutcomeSpawnFailed {
		return plan.PlanResult{OverallStatus: plan.OverallFailed, Notes: fmt.Sprintf("spawn failed: %v", run.SpawnErr)}
	}

	if run.Outcome != driver.OutcomeExited {
		result := resultparser.Parse(run.Stdout)
		if len(result.Steps) == 0 || allErrorOrEmpty(result) {
			result = plan.PlanResult{OverallStatus: plan.OverallFailed}
		} else if result.OverallStatus == plan.OverallSuccess {
			result.OverallStatus = plan.OverallPartial
		}
		result.Notes = strings.TrimSpace(string(run.Outcome) + ". " + result.Notes)
		return result
	}

	parsed := a.Parse(run.Stdout, run.Stderr, run.ExitCode, o.guard.RepoRoot())
	var result plan.PlanResult
	switch parsed.Confidence {
	case adapter.Ok:
		result = planResultFromParsed(parsed, p)
	case adapter.LowConfidence, adapter.NoPayload:
		result = resultparser.Parse(run.Stdout)
	default:
		result = resultparser.Parse(run.Stdout)
	}
	if run.DrainTimedOut {
		result.Notes = strings.TrimSpace("stdout/stderr drain grace expired before EOF; output may be incomplete. " + result.Notes)
	}
	return result
}

func allErrorOrEmpty(r plan.PlanResult) bool {
	return r.OverallStatus == plan.OverallFailed && len(r.FilesModified) == 0
}

// planResultFromParsed builds a PlanResult from a confident adapter
// reading. When the adapter recovered the child's real per-step
// statuses (parsed.Steps), those are used verbatim and OverallStatus is
// derived from them via plan.Aggregate, so a child reporting
// overall_status="partial" with a mix of ok/fail steps surfaces that
// mix rather than being flattened into a uniform pass or fail. Only
// when the adapter has no per-step data (the generic fallback, which
// only ever sees exit_code) does this fabricate one StepResult per
// plan step from the single Success/Summary/Notes the adapter managed
// to recover.
func planResultFromParsed(parsed adapter.ParsedResult, p plan.Plan) plan.PlanResult {
	if len(parsed.Steps) > 0 {
		return plan.PlanResult{
			OverallStatus: plan.Aggregate(parsed.Steps),
			Steps:         parsed.Steps,
			FilesModified: parsed.TouchedPaths,
			Notes:         parsed.Notes,
		}
	}

	steps := p.Steps()
	st := plan.StepOK
	if !parsed.Success {
		st = plan.StepError
	}
	stepResults := make([]plan.StepResult, 0, len(steps))
	for _, s := range steps {
		stepResults = append(stepResults, plan.StepResult{
			ID:           s.ID,
			Status:       st,
			Summary:      parsed.Summary,
			Notes:        parsed.Notes,
			TouchedPaths: parsed.TouchedPaths,
		})
	}
	return plan.PlanResult{
		OverallStatus: plan.Aggregate(stepResults),
		Steps:         stepResults,
		FilesModified: parsed.TouchedPaths,
		Notes:         parsed.Notes,
	}
}

// filterTouchedPaths drops any touched_paths entry lying outside
// repo_root, even if the child reported one, per the testable property
// in §8.
func (o *Orchestrator) filterTouchedPaths(result plan.PlanResult) plan.PlanResult {
	result.FilesModified = o.filterPaths(result.FilesModified)
	for i := range result.Steps {
		result.Steps[i].TouchedPaths = o.filterPaths(result.Steps[i].TouchedPaths)
	}
	return result
}

func (o *Orchestrator) filterPaths(paths []string) []string {
	var kept []string
	for _, p := range paths {
		if _, err := o.guard.Resolve(p); err == nil {
			kept = append(kept, p)
		}
	}
	return kept
}

func (o *Orchestrator) recordMetric(taskID, tool, model string, taskType constants.TaskType, result plan.PlanResult, durationSec float64, err error) {
	if o.metrics == nil {
		return
	}
	errMsg := result.Notes
	if err != nil {
		errMsg = err.Error()
	}
	metric := plan.TaskMetric{
		TaskID:        taskID,
		UTCTimestamp:  time.Now().UTC().Format(time.RFC3339),
		Role:          o.role,
		Tool:          tool,
		Model:         model,
		DurationSec:   durationSec,
		Success:       result.OverallStatus == plan.OverallSuccess,
		ExecutionMode: plan.ExecutionModeFull,
		RepoRoot:      o.guard.RepoRoot(),
		ErrorMessage:  errMsg,
	}
	if recordErr := o.metrics.Record(metric); recordErr != nil {
		o.logger.Error().Err(recordErr).Msg("failed to record task metric")
	}
}

func minPositive(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
