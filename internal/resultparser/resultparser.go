// Package resultparser implements the Result Parser (C7): a four-
// strategy cascade that recovers the canonical JSON contract from a
// child CLI's raw stdout, which may contain any mix of prose, ANSI
// escapes, and JSON.
package resultparser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/forge-mcp/forge/internal/plan"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

var verbPath = regexp.MustCompile(`(?i)\b(wrote|created|modified)\b[^\n]*?([\w./-]+\.\w+)`)

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

var validStatus = map[string]bool{"success": true, "partial": true, "failed": true}

func validate(p canonicalPayload) bool {
	if !validStatus[p.OverallStatus] {
		return false
	}
	for _, s := range p.Steps {
		switch s.Status {
		case "ok", "fail", "error":
		default:
			return false
		}
	}
	return true
}

// Parse recovers a plan.PlanResult from raw stdout, trying each
// strategy of §4.7 in order and falling through on validation failure.
func Parse(stdout string) plan.PlanResult {
	clean := ansiEscape.ReplaceAllString(stdout, "")

	if p, ok := fromFencedBlocks(clean); ok {
		return toPlanResult(p, "")
	}
	if p, ok := fromBraceScan(clean); ok {
		return toPlanResult(p, "")
	}
	if p, ok := fromRawJSON(clean); ok {
		return toPlanResult(p, "")
	}
	return fromFreeText(clean)
}

// fromFencedBlocks tries every fenced block (```json or bare ```) in
// declaration order, accepting the first that parses and validates.
func fromFencedBlocks(text string) (canonicalPayload, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if p, err := parseAndValidate(m[1]); err == nil {
			return p, true
		}
	}
	return canonicalPayload{}, false
}

// fromBraceScan finds the first balanced {...} span (scanning for every
// candidate start position) that parses and validates.
func fromBraceScan(text string) (canonicalPayload, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchingBrace(text, start)
		if end < 0 {
			continue
		}
		if p, err := parseAndValidate(text[start : end+1]); err == nil {
			return p, true
		}
	}
	return canonicalPayload{}, false
}

// matchingBrace returns the index of the brace matching text[start],
// respecting string literals so braces inside JSON string values don't
// confuse the scan. Returns -1 if unbalanced.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// fromRawJSON treats the whole trimmed output as a candidate object.
func fromRawJSON(text string) (canonicalPayload, bool) {
	p, err := parseAndValidate(strings.TrimSpace(text))
	if err != nil {
		return canonicalPayload{}, false
	}
	return p, true
}

func parseAndValidate(candidate string) (canonicalPayload, error) {
	var p canonicalPayload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return canonicalPayload{}, err
	}
	if !validate(p) {
		return canonicalPayload{}, errInvalid
	}
	return p, nil
}

var errInvalid = jsonValidationError{}

type jsonValidationError struct{}

func (jsonValidationError) Error() string { return "payload missing overall_status or enum violation" }

// fromFreeText is the final fallback: no JSON recoverable, so stdout is
// treated as a free-text summary and touched_paths is inferred from a
// small set of verbs followed by a repo-relative path.
func fromFreeText(text string) plan.PlanResult {
	var touched []string
	seen := map[string]bool{}
	for _, m := range verbPath.FindAllStringSubmatch(text, -1) {
		path := strings.TrimPrefix(m[2], "./")
		if !seen[path] {
			seen[path] = true
			touched = append(touched, path)
		}
	}

	status := plan.OverallFailed
	stepStatus := plan.StepError
	if len(touched) > 0 {
		status = plan.OverallPartial
		stepStatus = plan.StepFail
	}

	notes := text
	const maxNotes = 4096
	if len(notes) > maxNotes {
		notes = notes[:maxNotes] + "...(truncated)"
	}

	return plan.PlanResult{
		OverallStatus: status,
		Steps: []plan.StepResult{{
			ID:           "freetext",
			Status:       stepStatus,
			Summary:      "no structured payload recovered; inferred from free text",
			TouchedPaths: touched,
			Notes:        notes,
		}},
		FilesModified: touched,
		Notes:         notes,
	}
}

func toPlanResult(p canonicalPayload, rawNotesOnFail string) plan.PlanResult {
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
	files := p.FilesModified
	if files == nil {
		for _, s := range steps {
			files = append(files, s.TouchedPaths...)
		}
	}
	return plan.PlanResult{
		OverallStatus: plan.OverallStatus(p.OverallStatus),
		Steps:         steps,
		FilesModified: files,
		Notes:         p.Notes,
	}
}

// Failed builds the all-strategies-failed PlanResult §4.7 specifies:
// a failed result carrying the raw output (truncated) in Notes.
func Failed(rawOutput string) plan.PlanResult {
	const maxNotes = 4096
	notes := rawOutput
	if len(notes) > maxNotes {
		notes = notes[:maxNotes] + "...(truncated)"
	}
	return plan.PlanResult{
		OverallStatus: plan.OverallFailed,
		Notes:         notes,
	}
}
