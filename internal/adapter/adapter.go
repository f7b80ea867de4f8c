// Package adapter implements the CLI Adapter Registry (C4): one Adapter
// per supported child coding CLI, selected by CODE_BIN's basename, each
// translating a canonical Instruction into a CommandSpec and translating
// the child's raw output back into a ParsedResult.
package adapter

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

// CommandSpec is everything the Subprocess Driver needs to spawn a
// child: argv, working directory, environment, and optional stdin.
type CommandSpec struct {
	Argv       []string
	Cwd        string
	Env        []string
	StdinBytes []byte
}

// Confidence tags how much an Adapter trusts its own parse of the
// child's output, replacing a boolean "did it work" with the three
// outcomes the Orchestrator actually needs to branch on: a confident
// payload, a payload the Result Parser should double-check, or no
// payload at all.
type Confidence string

const (
	// Ok means the adapter's own reading is final: a validated canonical
	// payload, a detected auth/credit failure, or (generic adapter) a
	// zero exit code.
	Ok Confidence = "ok"
	// LowConfidence means the adapter has a best-effort reading but
	// wants the Result Parser's cascade to attempt a better one.
	LowConfidence Confidence = "low_confidence"
	// NoPayload means the adapter found nothing resembling structured
	// output; the Result Parser's free-text fallback is the only hope.
	NoPayload Confidence = "no_payload"
)

// ParsedResult is an Adapter's best reading of a child invocation.
// Steps carries the per-step statuses the child actually reported, when
// it emitted the canonical payload; callers deriving an overall status
// from a ParsedResult must use plan.Aggregate(Steps) rather than
// collapsing to Success, so a "partial" run with a failed step is never
// reported as if every step succeeded.
type ParsedResult struct {
	Success      bool
	Summary      string
	TouchedPaths []string
	Notes        string
	Confidence   Confidence
	Steps        []plan.StepResult
}

// Adapter translates Instructions into CommandSpecs for one child CLI
// and translates that CLI's raw output back into a ParsedResult.
type Adapter interface {
	// Name identifies the adapter for logging and the orchestrator
	// cache key.
	Name() string
	// BuildCommand selects model flags, materializes the prompt
	// (argument, stdin, or temp file — adapter's discretion),
	// propagates scope where the child supports it, and disables
	// interactive/auto-commit behavior.
	BuildCommand(codeBin string, instr plan.Instruction) (CommandSpec, error)
	// Parse must not rely solely on exit code: child CLIs routinely
	// exit 0 on authentication or credit failures. Adapters scan
	// stderr for documented markers and downgrade Success accordingly.
	Parse(stdout, stderr string, exitCode int, repoRoot string) ParsedResult
	// DefaultTimeout gives the adapter's own ceiling for a task type;
	// the Orchestrator takes the min of this and Settings.MaxTimeFor.
	// Tool requests carry no per-request timeout override.
	DefaultTimeout(taskType constants.TaskType) time.Duration
}

// authMarkers are stderr substrings that indicate an authentication or
// billing failure regardless of exit code. Matching is case-insensitive.
var authMarkers = []string{
	"401 unauthorized",
	"403 forbidden",
	"invalid api key",
	"invalid_api_key",
	"authentication failed",
	"rate limit",
	"rate_limit_exceeded",
	"insufficient_quota",
	"out of credits",
	"quota exceeded",
	"billing",
	"payment required",
}

// hasAuthOrCreditFailure scans stderr for a documented marker.
func hasAuthOrCreditFailure(stderr string) (string, bool) {
	lower := strings.ToLower(stderr)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	return "", false
}

// Registry selects an Adapter by CODE_BIN's basename against a
// registered table of substrings, falling back to a generic adapter
// for anything unrecognized.
type Registry struct {
	entries []registryEntry
	generic Adapter
}

type registryEntry struct {
	substr  string
	factory func() Adapter
}

// NewRegistry returns a Registry pre-populated with the built-in
// adapters for aider, opencode, claude, gemini, and qwen, plus the
// generic fallback.
func NewRegistry() *Registry {
	return &Registry{
		entries: []registryEntry{
			{"aider", func() Adapter { return newAiderAdapter() }},
			{"opencode", func() Adapter { return newOpenCodeAdapter() }},
			{"claude", func() Adapter { return newClaudeAdapter() }},
			{"gemini", func() Adapter { return newGeminiAdapter() }},
			{"qwen", func() Adapter { return newQwenAdapter() }},
		},
		generic: newGenericAdapter(),
	}
}

// For selects the adapter bound to codeBin's basename. Unknown names
// fall back to the generic adapter, per §4.4.
func (r *Registry) For(codeBin string) Adapter {
	base := strings.ToLower(filepath.Base(codeBin))
	for _, e := range r.entries {
		if strings.Contains(base, e.substr) {
			return e.factory()
		}
	}
	return r.generic
}
