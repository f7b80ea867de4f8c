// Package scope implements the Path & Scope Guard (C1): resolving
// repo-relative paths against a fixed root, enforcing allow/deny glob
// lists, and scanning context paths into a bounded byte budget. Every
// other component that touches a filesystem path funnels through here
// first.
package scope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forge-mcp/forge/internal/constants"
)

// InvalidPath is returned when a path's canonical form escapes repo_root
// (traversal via "..", an absolute path outside root, or a symlink that
// resolves outside root).
type InvalidPath struct {
	Path   string
	Reason string
}

func (e *InvalidPath) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// ScopeViolation is returned when a path is rejected by the allow/deny
// glob rules rather than by traversal.
type ScopeViolation struct {
	Path string
}

func (e *ScopeViolation) Error() string {
	return fmt.Sprintf("scope violation: %q is not within the allowed globs", e.Path)
}

// Guard binds the Path & Scope Guard's three predicates to a fixed
// repository root.
type Guard struct {
	repoRoot string
}

// New resolves repoRoot to its absolute, symlink-free canonical form and
// returns a Guard bound to it.
func New(repoRoot string) (*Guard, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &InvalidPath{Path: repoRoot, Reason: "repo root does not exist"}
		}
		return nil, fmt.Errorf("resolve repo root symlinks: %w", err)
	}
	return &Guard{repoRoot: canon}, nil
}

// RepoRoot returns the Guard's canonical repository root.
func (g *Guard) RepoRoot() string { return g.repoRoot }

// Resolve rejects absolute paths outside root and any path whose
// canonical form (symlinks resolved) is not a descendant of root. A
// relative path is interpreted relative to repo_root. Returns the
// canonical absolute path on success.
func (g *Guard) Resolve(path string) (string, error) {
	if path == "" {
		return "", &InvalidPath{Path: path, Reason: "empty path"}
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(g.repoRoot, path))
	}

	if !isDescendant(g.repoRoot, candidate) {
		return "", &InvalidPath{Path: path, Reason: "escapes repo root"}
	}

	// Resolve symlinks on whatever portion of the path exists; a path
	// that does not exist yet (e.g. a file the child is about to
	// create) is still valid as long as its deepest existing ancestor
	// stays within root.
	resolved, err := resolveExistingSymlinks(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks for %s: %w", path, err)
	}
	if !isDescendant(g.repoRoot, resolved) {
		return "", &InvalidPath{Path: path, Reason: "symlink escapes repo root"}
	}

	return resolved, nil
}

// isDescendant reports whether candidate is root or a path under root.
func isDescendant(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExistingSymlinks walks up from path until it finds an existing
// ancestor, resolves that ancestor's symlinks, then rejoins the
// not-yet-existing suffix.
func resolveExistingSymlinks(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		return filepath.EvalSymlinks(path)
	} else if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveExistingSymlinks(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// Allowed reports whether a repo-relative path matches at least one
// allow-glob (default "**/*" when the list is empty) and no deny-glob.
// Deny wins on conflict.
func Allowed(relPath string, allow, deny []string) bool {
	relPath = filepath.ToSlash(relPath)

	for _, pattern := range deny {
		if globMatch(pattern, relPath) {
			return false
		}
	}

	if len(allow) == 0 {
		return true
	}
	for _, pattern := range allow {
		if globMatch(pattern, relPath) {
			return true
		}
	}
	return false
}

// globMatch matches a slash-separated glob pattern against a
// slash-separated relative path, supporting "**" as "zero or more path
// segments" in addition to filepath.Match's single-segment "*" and "?".
// The standard library's path.Match and filepath.Match have no "**"
// support, so this is a small hand-rolled extension rather than a
// stdlib-only substitute for a missing feature (see DESIGN.md).
func globMatch(pattern, path string) bool {
	if pattern == "**/*" || pattern == "**" {
		return true
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

// ScannedFile is one entry returned by Scan.
type ScannedFile struct {
	RelPath string
	Bytes   []byte
}

// ScanResult is Scan's full return value, including truncation metadata.
type ScanResult struct {
	Files     []ScannedFile
	Truncated bool
	Skipped   []string // paths that do not exist; reported, not fatal
}

// Scan expands directory context paths, filters entries through Allowed,
// and truncates to maxBytes total (0 selects the default scan budget).
// Missing context paths are silently skipped, per §3, with the omission
// recorded in Skipped rather than raising an error.
func (g *Guard) Scan(contextPaths []string, allow, deny []string, maxBytes int) (*ScanResult, error) {
	if maxBytes <= 0 {
		maxBytes = constants.DefaultScanBudget
	}

	var candidates []string
	result := &ScanResult{}

	for _, p := range contextPaths {
		resolved, err := g.Resolve(p)
		if err != nil {
			var invalid *InvalidPath
			if errors.As(err, &invalid) {
				return nil, err
			}
			return nil, err
		}
		info, err := os.Stat(resolved)
		if err != nil {
			if os.IsNotExist(err) {
				result.Skipped = append(result.Skipped, p)
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			err := filepath.Walk(resolved, func(walked string, wi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if wi.IsDir() {
					return nil
				}
				candidates = append(candidates, walked)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk %s: %w", p, err)
			}
		} else {
			candidates = append(candidates, resolved)
		}
	}

	sort.Strings(candidates)

	var total int
	for _, abs := range candidates {
		rel, err := filepath.Rel(g.repoRoot, abs)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !Allowed(rel, allow, deny) {
			continue
		}
		if total >= maxBytes {
			result.Truncated = true
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		remaining := maxBytes - total
		if len(data) > remaining {
			data = data[:remaining]
			result.Truncated = true
		}
		total += len(data)
		result.Files = append(result.Files, ScannedFile{RelPath: rel, Bytes: data})
	}

	return result, nil
}

// CheckScope resolves and allow/deny-checks a single repo-relative path
// in one call, the shape the Orchestrator uses to scope-check plan
// inputs before spawning anything (§4.8 step 1).
func (g *Guard) CheckScope(relPath string, allow, deny []string) error {
	resolved, err := g.Resolve(relPath)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(g.repoRoot, resolved)
	if err != nil {
		return fmt.Errorf("compute relative path: %w", err)
	}
	if !Allowed(filepath.ToSlash(rel), allow, deny) {
		return &ScopeViolation{Path: relPath}
	}
	return nil
}
