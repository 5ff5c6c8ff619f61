package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

type containerRunner struct{}

var terminalStderrSignatures = []string{
	"unknown flag",
	"no such file or directory",
	"not found",
	"invalid argument",
	`for "--mount" flag`,
	"invalid reference format",
	"permission denied",
}

func requiredEnvKey(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// Preflight runs the terminal pre-invocation checks shared by docker and
// apple modes: the env allowlist must cover the provider's key, that key
// must actually be present in the ambient environment, and network must
// not be "none". It is exported so the sandbox-check CLI can exercise the
// same logic outside of a real invocation.
func Preflight(cfg Config, provider string) error {
	required := requiredEnvKey(provider)
	allowed := false
	for _, k := range cfg.EnvAllowlist {
		if k == required {
			allowed = true
			break
		}
	}
	if !allowed {
		return Terminal(Mode(cfg.RuntimeCommand), fmt.Sprintf("%s is not in the sandbox env allowlist", required), "add it to sandbox.env_allowlist", nil)
	}
	if os.Getenv(required) == "" {
		return Terminal(Mode(cfg.RuntimeCommand), fmt.Sprintf("%s is not set in the host environment", required), "export the key before starting the processor", nil)
	}
	if cfg.Network == "none" {
		return Terminal(Mode(cfg.RuntimeCommand), "sandbox network mode \"none\" cannot reach cloud providers", "set sandbox.docker.network to \"default\" or \"restricted\"", nil)
	}
	return nil
}

func (r *containerRunner) Run(ctx context.Context, cfg Config, req Request) (*Result, error) {
	mode := Mode(runtimeModeName(cfg))

	if err := Preflight(cfg, req.Provider); err != nil {
		if ie, ok := err.(*InvocationError); ok {
			ie.Mode = mode
		}
		return nil, err
	}

	containerWorkDir, mappings := resolvePathMapping(cfg.PathMappingMode, req.WorkingDir)

	homeDir := filepath.Join(req.WorkingDir, ".tinyclaw-home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, Transient(mode, "could not prepare the sandbox home directory", err)
	}

	args := buildArgv(cfg, req, containerWorkDir)

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.RuntimeCommand, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, Transient(mode, "the agent timed out", runCtx.Err())
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, Terminal(mode, fmt.Sprintf("%s runtime binary not found", cfg.RuntimeCommand), "run the sandbox doctor to verify the runtime is installed", err)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, os.ErrNotExist) {
			return nil, Terminal(mode, fmt.Sprintf("%s runtime binary not found", cfg.RuntimeCommand), "run the sandbox doctor to verify the runtime is installed", err)
		}

		sanitizedStderr := Redact(stderr.String())
		if classifyStderr(sanitizedStderr) == ClassTerminal {
			return nil, Terminal(mode, "the sandbox runtime rejected the invocation", "", errors.New(sanitizedStderr))
		}
		return nil, Transient(mode, "the agent process exited with an error", errors.New(sanitizedStderr))
	}

	return &Result{
		Stdout:       stdout.String(),
		Stderr:       Redact(stderr.String()),
		DurationMs:   duration.Milliseconds(),
		Mode:         mode,
		PathMappings: mappings,
	}, nil
}

func runtimeModeName(cfg Config) string {
	if cfg.RuntimeCommand == "container" {
		return string(ModeApple)
	}
	return string(ModeDocker)
}

// classifyStderr is a pure function over lowercased stderr text, matching
// any of the fixed terminal signatures documented for container exit
// failures. Anything else (including a timeout, handled separately by
// the caller) is transient.
func classifyStderr(stderr string) Classification {
	lower := strings.ToLower(stderr)
	for _, sig := range terminalStderrSignatures {
		if strings.Contains(lower, sig) {
			return ClassTerminal
		}
	}
	return ClassTransient
}

// resolvePathMapping computes the working directory the agent sees
// inside the container and the PathMapping list used later to translate
// paths the agent emits back to host paths.
func resolvePathMapping(mode PathMappingMode, hostWorkingDir string) (string, []PathMapping) {
	if mode == PathMappingSamePath {
		return hostWorkingDir, []PathMapping{{ContainerPrefix: hostWorkingDir, HostPrefix: hostWorkingDir}}
	}
	const containerWorkDir = "/workspace"
	return containerWorkDir, []PathMapping{{ContainerPrefix: containerWorkDir, HostPrefix: hostWorkingDir}}
}

// buildArgv constructs the exact container runtime argv contract: a
// one-shot "run --rm ..." invocation, never a persistent container plus
// exec. apple mirrors docker minus the docker-only hardening flags.
func buildArgv(cfg Config, req Request, containerWorkDir string) []string {
	docker := cfg.RuntimeCommand != "container"

	args := []string{"run", "--rm", "--workdir", containerWorkDir}

	if cfg.Network == "default" || cfg.Network == "restricted" {
		args = append(args, "--network", "bridge")
	}

	args = append(args, "--memory", fmt.Sprintf("%dm", cfg.MemoryMB))
	args = append(args, "--cpus", fmt.Sprintf("%g", cfg.CPUs))

	if docker {
		args = append(args, "--pull", "missing")
		args = append(args, "--pids-limit", fmt.Sprintf("%d", cfg.PidsLimit))
		args = append(args, "--security-opt", "no-new-privileges")
		args = append(args, "--cap-drop", "ALL")
		args = append(args, "--read-only")
		args = append(args, "--tmpfs", "/tmp:rw,noexec,nosuid,size=256m")
	}

	args = append(args, "--user", "1000:1000")
	args = append(args, "--volume", fmt.Sprintf("%s:%s", req.WorkingDir, containerWorkDir))
	args = append(args, "--env", fmt.Sprintf("HOME=%s", filepath.Join(containerWorkDir, ".tinyclaw-home")))

	for _, key := range cfg.EnvAllowlist {
		if v := os.Getenv(key); v != "" {
			args = append(args, "--env", fmt.Sprintf("%s=%s", key, v))
		}
	}

	args = append(args, cfg.Image, req.Command)
	args = append(args, req.Args...)
	return args
}
