// Package plan defines the request-scoped data model shared by the
// Orchestrator, Prompt Builder, CLI Adapter Registry, and Result Parser:
// Plan/Step on the way in, Instruction handed to an Adapter, and
// StepResult/PlanResult on the way out.
package plan

import "github.com/forge-mcp/forge/internal/constants"

// Step is one unit of work inside a SequentialPlan or ParallelPlan.
type Step struct {
	ID             string
	Title          string
	Task           string
	ContextPaths   []string
	AllowGlobs     []string
	DenyGlobs      []string
	TestPlan       []string
	IterationBudget int
}

// Plan is either a SequentialPlan or a ParallelPlan. Modeled as a tagged
// sum type (a closed interface with an unexported marker method) rather
// than a discriminated map, so a missing case in a type switch is a
// compile error instead of a silent no-op.
type Plan interface {
	isPlan()
	Steps() []Step
}

// SequentialPlan is an ordered list of Steps; step N+1 may reference the
// output of step N, and a failure halts the remaining steps.
type SequentialPlan struct {
	StepList []Step
}

func (SequentialPlan) isPlan()             {}
func (p SequentialPlan) Steps() []Step     { return p.StepList }

// ParallelPlan is a set of independent Steps plus a fanout hint bounding
// how many should run concurrently inside the child CLI's own session.
type ParallelPlan struct {
	StepList []Step
	Fanout   int
}

func (ParallelPlan) isPlan()           {}
func (p ParallelPlan) Steps() []Step   { return p.StepList }

// SimplePlan wraps a single ad hoc task as a one-step quick plan, the
// shape execute_simple hands to the Prompt Builder.
type SimplePlan struct {
	Step Step
}

func (SimplePlan) isPlan()           {}
func (p SimplePlan) Steps() []Step   { return []Step{p.Step} }

// ExecutionMode selects how much of the plan's detail the Prompt Builder
// renders.
type ExecutionMode string

const (
	ExecutionModeQuick ExecutionMode = "quick"
	ExecutionModeFull  ExecutionMode = "full"
)

// Instruction is the canonical payload handed to a CLI Adapter: produced
// by the Prompt Builder, consumed by the Adapter Registry and Driver.
type Instruction struct {
	RepoRoot      string
	Plan          Plan
	ExecutionMode ExecutionMode
	AllowGlobs    []string
	DenyGlobs     []string
	SelectedModel string
	TaskType      constants.TaskType
	ContextFiles  map[string][]byte

	// Rendered is the Prompt Builder's textual output — the single
	// instruction body an Adapter materializes as argv, stdin, or a
	// temp file. Populated by the Prompt Builder, not by callers.
	Rendered string
}

// StepStatus is a StepResult's outcome.
type StepStatus string

const (
	StepOK    StepStatus = "ok"
	StepFail  StepStatus = "fail"
	StepError StepStatus = "error"
)

// StepResult reports one step's outcome, whether or not the plan
// actually spawned one subprocess per step (it never does — see
// PlanResult's aggregation below).
type StepResult struct {
	ID           string
	Status       StepStatus
	Summary      string
	Notes        string
	TouchedPaths []string
	ErrorMessage string
}

// OverallStatus is a PlanResult's aggregate outcome.
type OverallStatus string

const (
	OverallSuccess OverallStatus = "success"
	OverallPartial OverallStatus = "partial"
	OverallFailed  OverallStatus = "failed"
)

// PlanResult aggregates every StepResult from a single child invocation.
type PlanResult struct {
	OverallStatus OverallStatus
	Steps         []StepResult
	FilesModified []string
	Notes         string
	DurationMS    int64
	ModelUsed     string
}

// Aggregate derives OverallStatus from steps per the invariant in §3:
// success iff every step is ok, failed iff any step is error, otherwise
// partial. Callers build Steps/FilesModified/Notes/etc. directly and
// call Aggregate to fill OverallStatus consistently.
func Aggregate(steps []StepResult) OverallStatus {
	if len(steps) == 0 {
		return OverallFailed
	}
	allOK := true
	anyError := false
	for _, s := range steps {
		if s.Status != StepOK {
			allOK = false
		}
		if s.Status == StepError {
			anyError = true
		}
	}
	switch {
	case allOK:
		return OverallSuccess
	case anyError:
		return OverallFailed
	default:
		return OverallPartial
	}
}

// DaemonRecord is the persisted, per-role daemon identity: one PID file
// per role, reconciled by the Supervisor on every start/status call.
type DaemonRecord struct {
	Role      constants.Role
	PID       int
	Port      int
	StartedAt int64 // unix seconds; stamped by the caller, never time.Now() here
	URL       string
}

// TaskMetric is one row appended to the per-repo metrics CSV by the
// Metrics Log after every subprocess invocation.
type TaskMetric struct {
	TaskID           string
	UTCTimestamp     string
	Role             constants.Role
	Tool             string
	Model            string
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	InputCostUSD     float64
	OutputCostUSD    float64
	TotalCostUSD     float64
	DurationSec      float64
	Success          bool
	ExecutionMode    ExecutionMode
	RepoRoot         string
	ScopeGlobs       string
	ErrorMessage     string
}
