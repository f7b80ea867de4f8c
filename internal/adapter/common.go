package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forge-mcp/forge/internal/plan"
)

// canonicalPayload mirrors the structured-output contract the Prompt
// Builder instructs every child to emit (§4.4).
type canonicalPayload struct {
	OverallStatus string `json:"overall_status"`
	Steps         []struct {
		ID           string   `json:"id"`
		Status       string   `json:"status"`
		Summary      string   `json:"summary"`
		Notes        string   `json:"notes"`
		TouchedPaths []string `json:"touched_paths"`
	} `json:"steps"`
	FilesModified []string `json:"files_modified"`
	Notes         string   `json:"notes"`
}

var validOverallStatus = map[string]bool{"success": true, "partial": true, "failed": true}

// parseCanonicalJSON validates raw against the canonical contract, the
// same validation the Result Parser applies to every strategy's
// candidate payload.
func parseCanonicalJSON(raw string) (canonicalPayload, error) {
	var p canonicalPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return canonicalPayload{}, fmt.Errorf("unmarshal canonical payload: %w", err)
	}
	if p.OverallStatus == "" || !validOverallStatus[p.OverallStatus] {
		return canonicalPayload{}, fmt.Errorf("missing or invalid overall_status %q", p.OverallStatus)
	}
	for _, s := range p.Steps {
		switch s.Status {
		case "ok", "fail", "error":
		default:
			return canonicalPayload{}, fmt.Errorf("invalid step status %q", s.Status)
		}
	}
	return p, nil
}

func (p canonicalPayload) touchedPaths() []string {
	if len(p.FilesModified) > 0 {
		return p.FilesModified
	}
	var all []string
	for _, s := range p.Steps {
		all = append(all, s.TouchedPaths...)
	}
	return all
}

func (p canonicalPayload) summary() string {
	if len(p.Steps) == 1 {
		return p.Steps[0].Summary
	}
	return p.Notes
}

// stepResults converts the child's reported per-step statuses into the
// shared plan.StepResult shape, preserving exactly what the child said
// rather than fabricating a uniform pass/fail across every step.
func (p canonicalPayload) stepResults() []plan.StepResult {
	steps := make([]plan.StepResult, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, plan.StepResult{
			ID:           s.ID,
			Status:       plan.StepStatus(s.Status),
			Summary:      s.Summary,
			Notes:        s.Notes,
			TouchedPaths: s.TouchedPaths,
		})
	}
	return steps
}

// tryStdoutJSON gives a concrete adapter its own first attempt at the
// canonical payload before falling back to low-confidence/no-payload,
// so a well-behaved child's exact-match JSON never round-trips through
// the Result Parser's fenced/brace-scan cascade unnecessarily.
func tryStdoutJSON(stdout string) (canonicalPayload, bool) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" || trimmed[0] != '{' {
		return canonicalPayload{}, false
	}
	p, err := parseCanonicalJSON(trimmed)
	if err != nil {
		return canonicalPayload{}, false
	}
	return p, true
}

// parseWithAuthCheck is the shared Parse body for every adapter that
// scans stderr for auth/credit markers before trusting exit_code, per
// §4.4's "adapters must NOT rely solely on exit_code" rule.
func parseWithAuthCheck(stdout, stderr string, exitCode int) ParsedResult {
	if marker, found := hasAuthOrCreditFailure(stderr); found {
		return ParsedResult{
			Success:    false,
			Summary:    "authentication or credit failure detected in stderr",
			Notes:      fmt.Sprintf("matched marker %q", marker),
			Confidence: Ok,
		}
	}

	if payload, ok := tryStdoutJSON(stdout); ok {
		steps := payload.stepResults()
		success := payload.OverallStatus == "success"
		if len(steps) > 0 {
			success = plan.Aggregate(steps) == plan.OverallSuccess
		}
		return ParsedResult{
			Success:      success,
			Summary:      payload.summary(),
			TouchedPaths: payload.touchedPaths(),
			Notes:        payload.Notes,
			Confidence:   Ok,
			Steps:        steps,
		}
	}

	if exitCode != 0 {
		return ParsedResult{
			Success:    false,
			Summary:    "child exited non-zero and produced no canonical payload",
			Notes:      strings.TrimSpace(stderr),
			Confidence: LowConfidence,
		}
	}

	return ParsedResult{
		Success:    false,
		Confidence: NoPayload,
	}
}
