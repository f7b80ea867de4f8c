package orchestrator

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/forge-mcp/forge/internal/adapter"
	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/driver"
	"github.com/forge-mcp/forge/internal/metrics"
	"github.com/forge-mcp/forge/internal/scope"
)

// Registry caches one Orchestrator per (repo_root, role, config
// generation), replacing the teacher's frozen-config ToolExecutor
// pattern: a config Reload bumps Settings.Generation, which changes the
// cache key and forces the next lookup to rebuild rather than serving a
// stale Orchestrator built against superseded Settings.
type Registry struct {
	mu          sync.Mutex
	cached      map[uint64]*Orchestrator
	adapters    *adapter.Registry
	logger      zerolog.Logger
}

// NewRegistry returns an empty Registry sharing one adapter.Registry
// across every cached Orchestrator.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		cached:   make(map[uint64]*Orchestrator),
		adapters: adapter.NewRegistry(),
		logger:   logger,
	}
}

// For returns the cached Orchestrator for (repoRoot, role) under the
// given Settings, building and caching a new one if the Settings
// generation has advanced since the last call.
func (r *Registry) For(repoRoot string, role constants.Role, settings *config.Settings, metricsLog *metrics.Log) (*Orchestrator, error) {
	key := cacheKey(repoRoot, role, settings.Generation())

	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.cached[key]; ok {
		return o, nil
	}

	guard, err := scope.New(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("bind scope guard: %w", err)
	}

	o := New(guard, r.adapters, driver.New(r.logger), metricsLog, settings, role, r.logger)
	r.cached[key] = o
	return o, nil
}

// cacheKey hashes the repo root, role, and config generation with xxh3
// — the same fast non-cryptographic hash the pack uses for its code
// embeddings — rather than building a string key and comparing whole
// Settings values on every lookup.
func cacheKey(repoRoot string, role constants.Role, generation uint64) uint64 {
	s := fmt.Sprintf("%s|%s|%d", repoRoot, role, generation)
	return xxh3.HashString(s)
}
