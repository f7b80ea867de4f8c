// Package rolemain implements the shared entry point every forge-<role>
// binary calls into, generalized from the teacher's cmd/discovery/main.go
// flag-parse/serve/signal-wait shape to forge's five fixed roles: each
// binary differs only in which constants.Role it is bound to.
package rolemain

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/forge-mcp/forge/internal/config"
	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/logging"
	"github.com/forge-mcp/forge/internal/mcpserver"
	"github.com/forge-mcp/forge/internal/orchestrator"
	"github.com/forge-mcp/forge/pkg/version"
)

// Run parses flags, loads Settings, builds the role's mcpserver.Server,
// and serves it over stdio or HTTP/SSE until an interrupt or SIGTERM,
// reloading Settings in place on SIGHUP.
func Run(role constants.Role) error {
	var (
		httpMode = flag.Bool("http", false, "Serve over HTTP/SSE instead of stdio")
		port     = flag.Int("port", 0, "HTTP/SSE listen port (0 uses the role's configured/default port)")
		envFile  = flag.String("env-file", "", "Path to the env-file (defaults to ~/.forge.env or $FORGE_ENV_FILE)")
		logLevel = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	)
	flag.Parse()

	path := *envFile
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve default env file: %w", err)
		}
		path = p
	}

	loader, err := config.NewLoader(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()
	if err := loader.Watch(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	settings := loader.Current()
	level := settings.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.NewWithComponent(logging.Config{Level: level, Pretty: false}, string(role))

	logger.Info().
		Str("version", version.Version).
		Str("role", string(role)).
		Msg("starting forge role daemon")

	loader.OnChange(func() {
		logger.Info().Uint64("generation", loader.Current().Generation()).Msg("configuration reloaded")
	})

	orch := orchestrator.NewRegistry(logger)
	srv, err := mcpserver.New(mcpserver.Config{
		Role:         role,
		Orchestrator: orch,
		Settings:     loader.Current(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build tool server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	if !*httpMode {
		go func() {
			for sig := range sigCh {
				if sig == syscall.SIGHUP {
					if _, err := loader.Reload(); err != nil {
						logger.Error().Err(err).Msg("reload failed")
					}
					continue
				}
				logger.Info().Msg("shutting down")
				os.Exit(0)
			}
		}()
		return srv.ServeStdio()
	}

	listenPort := *port
	if listenPort == 0 {
		listenPort = settings.PortForRole(role)
	}
	sseServer := server.NewSSEServer(srv.MCPServer())
	addr := fmt.Sprintf("127.0.0.1:%d", listenPort)
	logger.Info().Str("addr", addr).Msg("serving MCP over HTTP/SSE")

	httpServer := &http.Server{Addr: addr, Handler: sseServer}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if _, err := loader.Reload(); err != nil {
				logger.Error().Err(err).Msg("reload failed")
			}
			continue
		}
		break
	}

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
