// Package prompt implements the Prompt Builder (C6): it renders a Plan
// plus execution mode into a single textual Instruction body, embedding
// bounded context files and the canonical output-format contract every
// Adapter expects the child CLI to emit.
package prompt

import (
	"fmt"
	"strings"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
	"github.com/forge-mcp/forge/internal/scope"
)

const canonicalSchema = `{
  "overall_status": "success|partial|failed",
  "steps": [
    {"id": "...", "status": "ok|fail|error", "summary": "...", "notes": "...", "touched_paths": ["..."]}
  ],
  "files_modified": ["..."],
  "notes": "..."
}`

// Builder renders Instructions against a fixed Scope Guard, used to
// expand and bound the embedded context bundle.
type Builder struct {
	guard *scope.Guard
}

// New returns a Builder bound to guard.
func New(guard *scope.Guard) *Builder {
	return &Builder{guard: guard}
}

// Render returns a copy of instr with Rendered and ContextFiles filled
// in (the caller's value is not modified), mirroring the Builder's "no I/O
// decisions" contract: it hands back text plus a context bundle, never
// deciding how either reaches the child.
func (b *Builder) Render(instr plan.Instruction) (plan.Instruction, error) {
	var contextPaths []string
	for _, step := range instr.Plan.Steps() {
		contextPaths = append(contextPaths, step.ContextPaths...)
	}

	var scanned *scope.ScanResult
	if len(contextPaths) > 0 {
		result, err := b.guard.Scan(contextPaths, instr.AllowGlobs, instr.DenyGlobs, constants.MaxContextBytesTotal)
		if err != nil {
			return instr, fmt.Errorf("scan context paths: %w", err)
		}
		scanned = result
	}

	var sb strings.Builder
	writeOverview(&sb, instr)

	switch p := instr.Plan.(type) {
	case plan.SequentialPlan:
		writeSequential(&sb, p)
	case plan.ParallelPlan:
		writeParallel(&sb, p)
	case plan.SimplePlan:
		writeSimple(&sb, p)
	default:
		return instr, fmt.Errorf("prompt: unknown plan type %T", instr.Plan)
	}

	if scanned != nil {
		writeContextFiles(&sb, scanned)
	}

	writeOutputContract(&sb)

	instr.Rendered = sb.String()
	if scanned != nil {
		instr.ContextFiles = make(map[string][]byte, len(scanned.Files))
		for _, f := range scanned.Files {
			instr.ContextFiles[f.RelPath] = f.Bytes
		}
	}
	return instr, nil
}

func writeOverview(sb *strings.Builder, instr plan.Instruction) {
	steps := instr.Plan.Steps()
	fmt.Fprintf(sb, "# Task Plan\n\n")
	fmt.Fprintf(sb, "- repo root: %s\n", instr.RepoRoot)
	fmt.Fprintf(sb, "- mode: %s\n", planMode(instr.Plan))
	fmt.Fprintf(sb, "- step count: %d\n", len(steps))
	if len(instr.AllowGlobs) > 0 {
		fmt.Fprintf(sb, "- allow globs: %s\n", strings.Join(instr.AllowGlobs, ", "))
	}
	if len(instr.DenyGlobs) > 0 {
		fmt.Fprintf(sb, "- deny globs: %s\n", strings.Join(instr.DenyGlobs, ", "))
	}
	sb.WriteString("\n")
}

func planMode(p plan.Plan) string {
	switch p.(type) {
	case plan.SequentialPlan:
		return "sequential"
	case plan.ParallelPlan:
		return "parallel"
	default:
		return "quick"
	}
}

func writeSequential(sb *strings.Builder, p plan.SequentialPlan) {
	sb.WriteString("Steps run in order. Step N+1 may reference the output of step N. ")
	sb.WriteString("If a step fails, halt and do not attempt later steps.\n\n")
	for i, step := range p.StepList {
		writeStep(sb, i+1, step)
	}
}

func writeParallel(sb *strings.Builder, p plan.ParallelPlan) {
	fanout := p.Fanout
	if fanout < 1 {
		fanout = 1
	}
	fmt.Fprintf(sb, "Steps are independent; at most %d steps should run concurrently. ", fanout)
	sb.WriteString("File scopes are declared disjoint; if a scope conflict is observed, serialize those steps.\n\n")
	for i, step := range p.StepList {
		writeStep(sb, i+1, step)
	}
}

func writeSimple(sb *strings.Builder, p plan.SimplePlan) {
	writeStep(sb, 1, p.Step)
}

func writeStep(sb *strings.Builder, n int, step plan.Step) {
	title := step.Title
	if title == "" {
		title = step.ID
	}
	fmt.Fprintf(sb, "## Step %d: %s (id=%s)\n\n", n, title, step.ID)
	sb.WriteString(step.Task)
	sb.WriteString("\n\n")
	if len(step.ContextPaths) > 0 {
		fmt.Fprintf(sb, "- context paths: %s\n", strings.Join(step.ContextPaths, ", "))
	}
	if len(step.AllowGlobs) > 0 {
		fmt.Fprintf(sb, "- allow globs (overrides plan default): %s\n", strings.Join(step.AllowGlobs, ", "))
	}
	if len(step.DenyGlobs) > 0 {
		fmt.Fprintf(sb, "- deny globs (overrides plan default): %s\n", strings.Join(step.DenyGlobs, ", "))
	}
	if len(step.TestPlan) > 0 {
		fmt.Fprintf(sb, "- test plan: %s\n", strings.Join(step.TestPlan, "; "))
	}
	if step.IterationBudget > 0 {
		fmt.Fprintf(sb, "- iteration budget: %d\n", step.IterationBudget)
	}
	sb.WriteString("\n")
}

func writeContextFiles(sb *strings.Builder, scanned *scope.ScanResult) {
	sb.WriteString("# Context Files\n\n")
	for _, f := range scanned.Files {
		body, flag := f.Bytes, ""
		if len(body) > constants.MaxContextBytesPerFile {
			body, flag = body[:constants.MaxContextBytesPerFile], "\n...(file truncated to fit the per-file size budget)"
		}
		fmt.Fprintf(sb, "## %s\n\n```\n%s%s\n```\n\n", f.RelPath, string(body), flag)
	}
	if scanned.Truncated {
		sb.WriteString("Note: the context bundle above was truncated to fit the size budget.\n\n")
	}
	for _, skipped := range scanned.Skipped {
		fmt.Fprintf(sb, "Note: context path %q does not exist and was skipped.\n", skipped)
	}
	sb.WriteString("\n")
}

func writeOutputContract(sb *strings.Builder) {
	sb.WriteString("# Required Output Format\n\n")
	sb.WriteString("Emit exactly one JSON object matching this schema (a fenced ```json block is preferred):\n\n")
	sb.WriteString("```\n")
	sb.WriteString(canonicalSchema)
	sb.WriteString("\n```\n")
}
