package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
)

// Request describes one agent turn to invoke.
type Request struct {
	AgentID    string
	Provider   string
	Model      string
	Message    string
	WorkingDir string
	Reset      bool
	Teammates  []string // other agent ids in the same team, for the metadata file
}

// Outcome is a successfully parsed invocation.
type Outcome struct {
	Text         string
	DurationMs   int64
	Mode         sandbox.Mode
	PathMappings []sandbox.PathMapping
}

// Invoker builds provider argv, applies a process-wide concurrency
// permit for non-host sandbox modes, and delegates to a sandbox.Runner.
// The permit is shared across every agent's Invoker, since the limit is
// process-wide, not per agent — see NewSharedPermit.
type Invoker struct {
	sandboxCfg sandbox.Config
	runner     sandbox.Runner
	permit     *semaphore.Weighted // nil when unbounded or mode == host
	logger     *slog.Logger
}

// NewSharedPermit builds the single process-wide concurrency permit from
// the top-level sandbox max_concurrency setting. maxConcurrency == 0
// means unbounded, returning nil — callers must treat a nil permit as
// "skip acquisition entirely".
func NewSharedPermit(maxConcurrency int) *semaphore.Weighted {
	if maxConcurrency <= 0 {
		return nil
	}
	return semaphore.NewWeighted(int64(maxConcurrency))
}

// New builds an Invoker for the given agent's normalized sandbox config.
// permit is the shared, process-wide concurrency permit (nil for
// unbounded); it is only consulted for non-host modes, matching "host
// mode bypasses it".
func New(cfg sandbox.Config, permit *semaphore.Weighted, logger *slog.Logger) *Invoker {
	inv := &Invoker{
		sandboxCfg: cfg,
		runner:     sandbox.New(cfg),
		logger:     logger,
	}
	if cfg.Mode != sandbox.ModeHost {
		inv.permit = permit
	}
	return inv
}

// Invoke ensures the agent's working directory exists, builds the
// provider argv, runs it through the sandbox runner (acquiring the
// concurrency permit first when one applies), and parses the provider's
// stdout into plain response text.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Outcome, error) {
	if err := EnsureAgentDir(req.WorkingDir, req.Teammates); err != nil {
		return nil, fmt.Errorf("prepare agent directory: %w", err)
	}

	command, args := BuildArgv(req.Provider, req.Model, req.Message, req.Reset)

	if inv.permit != nil {
		if err := inv.permit.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire concurrency permit: %w", err)
		}
		defer inv.permit.Release(1)
	}

	result, err := inv.runner.Run(ctx, inv.sandboxCfg, sandbox.Request{
		AgentID:    req.AgentID,
		Provider:   req.Provider,
		Command:    command,
		Args:       args,
		WorkingDir: req.WorkingDir,
	})
	if err != nil {
		return nil, err
	}

	var text string
	switch req.Provider {
	case "openai":
		text = ParseCodexOutput(result.Stdout)
	default:
		text = ParseClaudeOutput(result.Stdout)
	}

	return &Outcome{
		Text:         text,
		DurationMs:   result.DurationMs,
		Mode:         result.Mode,
		PathMappings: result.PathMappings,
	}, nil
}

const teammatesFile = "teammates.json"

// EnsureAgentDir creates the agent's working directory on first
// invocation if absent, and refreshes a teammate-metadata file whenever
// the caller knows the agent's current team membership. Per-agent
// scratch scaffolding beyond this is an external collaborator's concern.
func EnsureAgentDir(workingDir string, teammates []string) error {
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return err
	}
	if teammates == nil {
		return nil
	}
	data, err := json.MarshalIndent(struct {
		Teammates []string `json:"teammates"`
	}{Teammates: teammates}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workingDir, teammatesFile), data, 0o644)
}
