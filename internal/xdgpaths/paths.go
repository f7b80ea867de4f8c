// Package xdgpaths resolves the persisted-state layout described in the
// external interfaces section: per-repository cache directories and
// per-role runtime (PID) directories, rooted under XDG_CACHE_HOME and
// XDG_RUNTIME_DIR with the fallbacks the spec requires.
package xdgpaths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forge-mcp/forge/internal/constants"
)

// CacheRoot returns $XDG_CACHE_HOME/forge, falling back to ~/.cache/forge.
func CacheRoot() (string, error) {
	if dir := os.Getenv("CACHE_DIR"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, constants.AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cache", constants.AppName), nil
}

// RuntimeRoot returns $XDG_RUNTIME_DIR/forge, falling back to the cache root.
func RuntimeRoot() (string, error) {
	if dir := os.Getenv("RUNTIME_DIR"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, constants.AppName), nil
	}
	return CacheRoot()
}

// RepoDirName computes the "<sha256(repo_abs)[:16]>-<basename(repo)>"
// directory name for a repository's persisted state (§6).
func RepoDirName(repoRoot string) (string, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolve absolute repo path: %w", err)
	}
	sum := sha256.Sum256([]byte(abs))
	hash := hex.EncodeToString(sum[:])[:16]
	return fmt.Sprintf("%s-%s", hash, filepath.Base(abs)), nil
}

// RepoStateDir returns $XDG_CACHE_HOME/forge/<repo-dir-name>, creating it
// (and its logs/tasks/metrics children) if necessary.
func RepoStateDir(repoRoot string) (string, error) {
	root, err := CacheRoot()
	if err != nil {
		return "", err
	}
	name, err := RepoDirName(repoRoot)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, name)
	for _, sub := range []string{"logs", "tasks", "metrics"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return dir, nil
}

// RolePIDPath returns the PID file path for a role.
func RolePIDPath(role constants.Role) (string, error) {
	dir, err := RuntimeRoot()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create runtime dir: %w", err)
	}
	return filepath.Join(dir, string(role)+".pid"), nil
}

// RoleLogPath returns the daemon log path for a role, independent of any
// particular repository (daemons are not repo-scoped; tasks are).
func RoleLogPath(role constants.Role) (string, error) {
	dir, err := CacheRoot()
	if err != nil {
		return "", err
	}
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", fmt.Errorf("create logs dir: %w", err)
	}
	return filepath.Join(logsDir, string(role)+".log"), nil
}
