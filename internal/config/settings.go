// Package config implements the Config Loader (C2): a single env-file plus
// process environment overlay, exposed as a frozen settings view. The
// struct-tag env loading is grounded on the teacher's
// internal/config/envloader.go LoadFromEnv reflection walk; the file
// parsing itself uses github.com/joho/godotenv, the way the pack's
// haricheung-agentic-shell example loads its own env-file.
package config

import "github.com/forge-mcp/forge/internal/constants"

// Settings is the immutable, fully-resolved configuration view. A new
// Settings is produced by Load; nothing about it can be mutated afterward
// — a config edit always produces a new *Settings via Reload.
type Settings struct {
	// Provider API keys, forwarded opaquely to the child CLI's environment.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	SerperAPIKey    string `env:"SERPER_API_KEY"`
	PerplexityAPIKey string `env:"PERPLEXITY_API_KEY"`

	// Model selection.
	Model       string `env:"MODEL"`
	ModelCoder      string `env:"MODEL_CODER"`
	ModelResearcher string `env:"MODEL_RESEARCHER"`
	ModelSecretary  string `env:"MODEL_SECRETARY"`
	ModelResources  string `env:"MODEL_RESOURCES"`
	ModelPrompts    string `env:"MODEL_PROMPTS"`

	// Child CLI selection.
	CodeBin string `env:"CODE_BIN"`

	// Search provider for the researcher role.
	SearchProvider string `env:"SEARCH_PROVIDER"`

	// Per-role ports.
	PortCoder      int `env:"CODER_PORT"`
	PortResearcher int `env:"RESEARCHER_PORT"`
	PortSecretary  int `env:"SECRETARY_PORT"`
	PortResources  int `env:"RESOURCES_PORT"`
	PortPrompts    int `env:"PROMPTS_PORT"`

	// Timeouts (seconds; 0 means "use the task-type default").
	InactivityTimeoutSec int `env:"INACTIVITY_TIMEOUT_SEC"`
	TimeoutSec           int `env:"TIMEOUT_SEC"`

	// Cost/quality preference. At most one of these is true: Load
	// rejects a config that sets both (ErrConflictingPreference) rather
	// than silently resolving it, since both being set is almost always
	// a config mistake.
	PreferCost    bool `env:"PREFER_COST"`
	PreferQuality bool `env:"PREFER_QUALITY"`

	// Ambient logging knobs, always present next to the domain config
	// the way the teacher's own CLI flags expose them.
	LogLevel  string `env:"LOG_LEVEL"`
	LogPretty bool   `env:"LOG_PRETTY"`

	// generation increments every successful Load/Reload; used by the
	// Orchestrator Registry's adapter cache key (xxh3) to invalidate
	// stale entries without comparing whole Settings values.
	generation uint64
}

// Generation returns a monotonically increasing counter bumped on every
// Load, used to invalidate caches keyed off a Settings snapshot.
func (s *Settings) Generation() uint64 { return s.generation }

// PortForRole returns the configured (or default) port for a role.
func (s *Settings) PortForRole(role constants.Role) int {
	var configured int
	switch role {
	case constants.RoleCoder:
		configured = s.PortCoder
	case constants.RoleResearcher:
		configured = s.PortResearcher
	case constants.RoleSecretary:
		configured = s.PortSecretary
	case constants.RoleResources:
		configured = s.PortResources
	case constants.RolePrompts:
		configured = s.PortPrompts
	}
	if configured != 0 {
		return configured
	}
	return constants.DefaultPorts[role]
}

// ModelForRole returns the configured role-specific model, falling back to
// the global default.
func (s *Settings) ModelForRole(role constants.Role) string {
	var roleModel string
	switch role {
	case constants.RoleCoder:
		roleModel = s.ModelCoder
	case constants.RoleResearcher:
		roleModel = s.ModelResearcher
	case constants.RoleSecretary:
		roleModel = s.ModelSecretary
	case constants.RoleResources:
		roleModel = s.ModelResources
	case constants.RolePrompts:
		roleModel = s.ModelPrompts
	}
	if roleModel != "" {
		return roleModel
	}
	return s.Model
}

// InactivityFor returns the inactivity deadline for a task type, honoring
// an explicit override.
func (s *Settings) InactivityFor(t constants.TaskType) (seconds int) {
	if s.InactivityTimeoutSec > 0 {
		return s.InactivityTimeoutSec
	}
	return int(constants.DefaultInactivityTimeout(t).Seconds())
}

// MaxTimeFor returns the hard timeout for a task type: the explicit
// TIMEOUT_SEC override if set, else the task-type default. The
// Orchestrator takes min(adapter default, this); there is no
// per-request override.
func (s *Settings) MaxTimeFor(t constants.TaskType) (seconds int) {
	if s.TimeoutSec > 0 {
		return s.TimeoutSec
	}
	return int(constants.DefaultMaxTimeout(t).Seconds())
}
