package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flowstack-dev/flowstack/internal/autosave"
	"github.com/flowstack-dev/flowstack/internal/client"
	"github.com/flowstack-dev/flowstack/internal/events"
	"github.com/flowstack-dev/flowstack/internal/graph"
	"github.com/flowstack-dev/flowstack/internal/lifecycle"
	"github.com/flowstack-dev/flowstack/internal/logging"
	"github.com/flowstack-dev/flowstack/internal/registry"
	"github.com/flowstack-dev/flowstack/internal/store"
	"github.com/flowstack-dev/flowstack/internal/validation"
	"github.com/flowstack-dev/flowstack/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local draft store.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	// Component catalog and graph.
	reg := registry.Default()
	hub := events.NewMemoryHub()
	g := graph.New(reg, hub)

	configValidator, err := validation.NewConfigValidator()
	if err != nil {
		return fmt.Errorf("build config validator: %w", err)
	}
	checker := validation.NewChecker(reg, configValidator)

	// Backend client.
	backend, err := client.New(cfg.BackendURL, client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build backend client: %w", err)
	}

	orchestrator := lifecycle.NewOrchestrator(cfg.WorkflowName, "", g, checker, backend,
		lifecycle.WithStore(st),
		lifecycle.WithHub(hub),
		lifecycle.WithLogger(logger),
	)

	// Background autosave of the local draft.
	saver, err := autosave.New(orchestrator, st, hub, cfg.AutosaveCron,
		autosave.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build autosaver: %w", err)
	}
	if err := saver.Start(ctx); err != nil {
		return fmt.Errorf("start autosaver: %w", err)
	}
	defer saver.Stop()

	srv := mcp.NewFlowstackServer(mcp.FlowstackServerDeps{
		Registry:     reg,
		Graph:        g,
		Checker:      checker,
		Orchestrator: orchestrator,
		Responder:    backend,
		Logger:       logger,
	})

	logger.Info("flowstack started",
		"backend_url", cfg.BackendURL,
		"db_path", cfg.DBPath,
		"workflow", cfg.WorkflowName,
	)
	return srv.Serve(ctx)
}

// newLogger builds the stderr logger with correlation ID injection.
// Stdout is reserved for the MCP stdio transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
