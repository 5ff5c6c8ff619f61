package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults, matching the
// normalized sandbox config described in the data model.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Path: "~/.tinyclaw/workspace"},
		Models: ModelsConfig{
			Provider:  "anthropic",
			Anthropic: AnthropicModel{Model: "sonnet"},
			OpenAI:    OpenAIModel{Model: "gpt-5-codex"},
		},
		Sandbox: SandboxConfig{
			Mode:                        "host",
			TimeoutSeconds:              600,
			MaxAttempts:                 3,
			EnvAllowlist:                []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY"},
			PathMappingMode:             "mapped",
			HeartbeatDedupWindowSeconds: 60,
			Docker: ContainerRuntimeConfig{
				Image:          "tinyclaw-sandbox:bookworm-slim",
				Network:        "default",
				MemoryMB:       512,
				CPUs:           1.0,
				PidsLimit:      256,
				RuntimeCommand: "docker",
			},
			Apple: ContainerRuntimeConfig{
				Image:          "tinyclaw-sandbox:bookworm-slim",
				Network:        "default",
				MemoryMB:       512,
				CPUs:           1.0,
				RuntimeCommand: "container",
			},
		},
	}
}

// Load reads settings.json from path, falling back to Default() when the
// file is absent, then overlays environment variable overrides. json5 is
// used so operators can hand-edit the document with comments and trailing
// commas.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays a handful of env vars onto the config. Env
// vars take precedence over file values; API keys themselves are never
// read into the config struct, only their presence is checked later by
// the sandbox preflight (see internal/sandbox).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TINYCLAW_WORKSPACE"); v != "" {
		c.Workspace.Path = v
	}
	if v := os.Getenv("TINYCLAW_SANDBOX_MODE"); v != "" {
		c.Sandbox.Mode = v
	}
	if v := os.Getenv("TINYCLAW_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sandbox.MaxConcurrency = n
		}
	}
	if v := os.Getenv("TINYCLAW_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sandbox.MaxAttempts = n
		}
	}
}

// ExpandHome resolves a leading "~" in p to the current user's home
// directory; paths without one are returned unchanged.
func ExpandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// WatchReload watches path for writes and reloads the config into live,
// swapping its fields via ReplaceFrom whenever the file changes. It runs
// until ctx is canceled. Reload errors are logged and the previous,
// valid configuration is kept in place.
func WatchReload(ctx context.Context, path string, live *Config, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fresh, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config", "error", err)
				continue
			}
			live.ReplaceFrom(fresh)
			logger.Info("config reloaded", "path", path)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", werr)
		}
	}
}
