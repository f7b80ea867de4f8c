// Package patch implements coder_apply_patch's mechanical unified-diff
// application: the one coder-role operation that edits a repository's
// files directly instead of delegating to a child coding CLI. Every
// target path is resolved and scope-checked against the Path & Scope
// Guard (C1) before any file on disk is touched, so a patch touching a
// denied path is rejected whole — no partial application.
package patch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/forge-mcp/forge/internal/plan"
	"github.com/forge-mcp/forge/internal/scope"
)

// target is one file a parsed patch touches, resolved and scope-checked
// ahead of application.
type target struct {
	file     *gitdiff.File
	relPath  string // the path reported back in touched_paths/step id
	destPath string // absolute path the new content is written to
	oldPath  string // absolute path of the pre-image, empty for new files
}

// Apply parses diffText as a sequence of unified/git diff file patches,
// resolves and scope-checks every target path, and — only if every
// target clears the guard — applies each file's hunks against the
// working tree. Returns one plan.StepResult per file, keyed by its
// repo-relative path, and never writes a single byte if any target is
// rejected.
func Apply(guard *scope.Guard, diffText string, allow, deny []string) plan.PlanResult {
	files, _, err := gitdiff.Parse(bytesReader(diffText))
	if err != nil {
		return plan.PlanResult{
			OverallStatus: plan.OverallFailed,
			Notes:         fmt.Sprintf("parse unified diff: %v", err),
		}
	}
	if len(files) == 0 {
		return plan.PlanResult{OverallStatus: plan.OverallFailed, Notes: "diff contains no file patches"}
	}

	targets := make([]target, 0, len(files))
	for _, f := range files {
		t, err := resolveTarget(guard, f, allow, deny)
		if err != nil {
			return plan.PlanResult{
				OverallStatus: plan.OverallFailed,
				Notes:         fmt.Sprintf("ScopeViolation: %v", err),
			}
		}
		targets = append(targets, t)
	}

	steps := make([]plan.StepResult, 0, len(targets))
	var touched []string
	for _, t := range targets {
		step := applyOne(t)
		steps = append(steps, step)
		if step.Status == plan.StepOK {
			touched = append(touched, t.relPath)
		}
	}

	return plan.PlanResult{
		OverallStatus: plan.Aggregate(steps),
		Steps:         steps,
		FilesModified: touched,
	}
}

// resolveTarget scope-checks a parsed file's old and new names (a
// rename touches both) and decides which absolute path the result is
// written to. go-gitdiff already strips the "a/"/"b/" prefixes from
// OldName/NewName.
func resolveTarget(guard *scope.Guard, f *gitdiff.File, allow, deny []string) (target, error) {
	relPath := f.NewName
	if f.IsDelete {
		relPath = f.OldName
	}
	if relPath == "" {
		return target{}, fmt.Errorf("patch file entry has no name")
	}
	if err := guard.CheckScope(relPath, allow, deny); err != nil {
		return target{}, err
	}
	destPath, err := guard.Resolve(relPath)
	if err != nil {
		return target{}, err
	}

	t := target{file: f, relPath: relPath, destPath: destPath}

	if !f.IsNew {
		oldRel := f.OldName
		if oldRel == "" {
			oldRel = relPath
		}
		if err := guard.CheckScope(oldRel, allow, deny); err != nil {
			return target{}, err
		}
		oldPath, err := guard.Resolve(oldRel)
		if err != nil {
			return target{}, err
		}
		t.oldPath = oldPath
	}

	return t, nil
}

// applyOne applies a single parsed file's fragments to the working
// tree, reporting a StepResult rather than an error: one malformed hunk
// should not abort every other file a patch otherwise applies cleanly.
func applyOne(t target) plan.StepResult {
	step := plan.StepResult{ID: t.relPath, TouchedPaths: []string{t.relPath}}

	if t.file.IsDelete {
		if err := os.Remove(t.destPath); err != nil && !os.IsNotExist(err) {
			step.Status = plan.StepError
			step.ErrorMessage = fmt.Sprintf("remove %s: %v", t.relPath, err)
			return step
		}
		step.Status = plan.StepOK
		step.Summary = "deleted"
		return step
	}

	var src []byte
	if t.oldPath != "" {
		data, err := os.ReadFile(t.oldPath)
		if err != nil {
			step.Status = plan.StepError
			step.ErrorMessage = fmt.Sprintf("read %s: %v", t.relPath, err)
			return step
		}
		src = data
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(src), t.file); err != nil {
		step.Status = plan.StepError
		step.ErrorMessage = fmt.Sprintf("apply hunks to %s: %v", t.relPath, err)
		return step
	}

	mode := os.FileMode(0o644)
	if t.file.NewMode != 0 {
		mode = t.file.NewMode
	}
	if err := os.MkdirAll(filepath.Dir(t.destPath), 0o755); err != nil {
		step.Status = plan.StepError
		step.ErrorMessage = fmt.Sprintf("create parent dirs for %s: %v", t.relPath, err)
		return step
	}
	if err := os.WriteFile(t.destPath, out.Bytes(), mode); err != nil {
		step.Status = plan.StepError
		step.ErrorMessage = fmt.Sprintf("write %s: %v", t.relPath, err)
		return step
	}

	if t.oldPath != "" && t.oldPath != t.destPath {
		if err := os.Remove(t.oldPath); err != nil && !os.IsNotExist(err) {
			step.Status = plan.StepError
			step.ErrorMessage = fmt.Sprintf("remove renamed-from %s: %v", t.file.OldName, err)
			return step
		}
	}

	step.Status = plan.StepOK
	return step
}

func bytesReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}
