package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/eventlog"
	"github.com/nextlevelbuilder/tinyclaw/internal/logging"
	"github.com/nextlevelbuilder/tinyclaw/internal/orchestrator"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
	"github.com/nextlevelbuilder/tinyclaw/internal/tracing"
)

// runProcessor wires the queue processor: load config, resolve the
// workspace directory layout, run crash recovery, start the config
// hot-reload watcher, and run the orchestrator's poll loop until a
// shutdown signal arrives.
func runProcessor(ctx context.Context) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	workspaceRoot, err := config.ExpandHome(cfg.Snapshot().Workspace.Path)
	if err != nil {
		return fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(workspaceRoot, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	logger, closeLog, err := logging.New(filepath.Join(workspaceRoot, "logs"), verbose)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	store, err := queue.New(filepath.Join(workspaceRoot, "queue"))
	if err != nil {
		return fmt.Errorf("init queue store: %w", err)
	}

	recovered, err := store.RecoverCrashed()
	if err != nil {
		return fmt.Errorf("recover crashed messages: %w", err)
	}
	if recovered > 0 {
		logger.Info("recovered messages left in processing/ from a prior run", "count", recovered)
	}

	events, err := eventlog.NewFileSink(filepath.Join(workspaceRoot, "events"))
	if err != nil {
		return fmt.Errorf("init event sink: %w", err)
	}

	tracer, err := tracing.New(ctx, cfg.Snapshot().Telemetry)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := config.WatchReload(runCtx, cfgPath, cfg, logger); err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	orch := orchestrator.New(store, cfg, logger, events, tracer, workspaceRoot)
	logger.Info("tinyclaw processor starting", "workspace", workspaceRoot)

	return orch.Run(runCtx)
}
