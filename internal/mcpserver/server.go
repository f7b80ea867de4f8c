// Package mcpserver implements the MCP Tool Server (C11): the fixed
// per-role tool registry exposed over stdio or HTTP/SSE via
// github.com/mark3labs/mcp-go, bound to an orchestrator.Registry so every
// tool call resolves a per-repo Orchestrator before doing any work.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/metrics"
	"github.com/forge-mcp/forge/internal/orchestrator"
	"github.com/forge-mcp/forge/internal/xdgpaths"
)

// Server wraps an MCP server bound to one role's tool set.
type Server struct {
	mcpServer *server.MCPServer
	role      constants.Role
	orch      *orchestrator.Registry
	settings  *config.Settings
	logger    zerolog.Logger

	metricsMu    sync.Mutex
	metricsByDir map[string]*metrics.Log
}

// Config bundles what Server needs to register a role's tools.
type Config struct {
	Role         constants.Role
	Orchestrator *orchestrator.Registry
	Settings     *config.Settings
	Logger       zerolog.Logger
}

// New builds a Server and registers role's tool set. Only RoleCoder's
// tool set is mandated; the other four roles register stub
// plug-compatible tools (see stubs.go).
func New(cfg Config) (*Server, error) {
	s := &Server{
		mcpServer: server.NewMCPServer(
			fmt.Sprintf("%s-%s", constants.AppName, cfg.Role),
			"0.1.0",
		),
		role:         cfg.Role,
		orch:         cfg.Orchestrator,
		settings:     cfg.Settings,
		logger:       cfg.Logger.With().Str("component", "mcpserver").Str("role", string(cfg.Role)).Logger(),
		metricsByDir: make(map[string]*metrics.Log),
	}

	switch cfg.Role {
	case constants.RoleCoder:
		s.registerCoderTools()
	default:
		s.registerStubTools(cfg.Role)
	}

	return s, nil
}

// metricsFor returns the Metrics Log for repoRoot's state directory,
// opening and caching it on first use — one CSV per repository, not one
// per tool call.
func (s *Server) metricsFor(repoRoot string) (*metrics.Log, error) {
	stateDir, err := xdgpaths.RepoStateDir(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo state dir: %w", err)
	}
	metricsDir := filepath.Join(stateDir, "metrics")

	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	if log, ok := s.metricsByDir[metricsDir]; ok {
		return log, nil
	}
	log, err := metrics.Open(metricsDir)
	if err != nil {
		return nil, fmt.Errorf("open metrics log: %w", err)
	}
	s.metricsByDir[metricsDir] = log
	return log, nil
}

// ServeStdio blocks serving the role's tools over stdio, the default
// transport a forge-<role> binary launches with.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer exposes the underlying *server.MCPServer for the HTTP/SSE
// entry point (cmd/forge-<role>'s --http mode), which wraps it in
// server.NewSSEServer itself rather than duplicating that here.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// generateInputSchema reflects a tool's typed input struct into the
// map[string]any shape mcp.NewToolWithRawSchema expects, round-tripping
// through JSON the same way the teacher's tool registration does.
func generateInputSchema(inputType interface{}) (map[string]any, error) {
	reflector := jsonschema.Reflector{}
	schema := reflector.Reflect(inputType)
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return schemaMap, nil
}

// newTool builds an mcp.Tool from a typed input zero value, falling back
// to an empty object schema if reflection fails — never refusing to
// register the tool itself over a schema-generation hiccup.
func newTool(name, description string, inputType interface{}) mcp.Tool {
	schemaMap, err := generateInputSchema(inputType)
	if err != nil {
		schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	schemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		schemaBytes = []byte(`{"type":"object","properties":{}}`)
	}
	return mcp.NewToolWithRawSchema(name, description, schemaBytes)
}

func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

func decodeArgs(request mcp.CallToolRequest, out interface{}) error {
	raw, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal arguments: %w", err)
	}
	return nil
}
