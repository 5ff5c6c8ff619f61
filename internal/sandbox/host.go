package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

type hostRunner struct{}

// Run spawns command/args directly on the host with the ambient
// environment and no resource limits, enforcing TimeoutSeconds via
// SIGKILL. A non-zero exit is always transient in host mode — there is
// no stderr signature list to consult, since host mode never surfaces a
// container runtime's own complaints.
func (r *hostRunner) Run(ctx context.Context, cfg Config, req Request) (*Result, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Command, req.Args...)
	cmd.Dir = req.WorkingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, Transient(ModeHost, "the agent timed out", runCtx.Err())
	}
	if err != nil {
		return nil, Transient(ModeHost, "the agent process exited with an error", errors.New(Redact(stderr.String())))
	}

	mappings := []PathMapping{{ContainerPrefix: req.WorkingDir, HostPrefix: req.WorkingDir}}
	return &Result{
		Stdout:       stdout.String(),
		Stderr:       Redact(stderr.String()),
		DurationMs:   duration.Milliseconds(),
		Mode:         ModeHost,
		PathMappings: mappings,
	}, nil
}
