// Package config loads and normalizes the on-disk settings document that
// drives the queue processor: workspace location, agent/team definitions,
// model defaults, sandbox policy, and telemetry.
package config

import (
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
)

// Config is the root configuration for the tinyclaw queue processor.
type Config struct {
	Workspace WorkspaceConfig `json:"workspace"`
	Channels  ChannelsConfig  `json:"channels"`
	Models    ModelsConfig    `json:"models"`
	Agents    map[string]AgentSpec `json:"agents,omitempty"`
	Teams     map[string]TeamSpec `json:"teams,omitempty"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`

	mu sync.RWMutex
}

// WorkspaceConfig locates the root directory agents scratch in.
type WorkspaceConfig struct {
	Path string `json:"path"`
}

// ChannelsConfig lists which external channel clients are enabled.
// The channel clients themselves are an external collaborator. The
// processor loads this list but does not consult it: channel-specific
// filename conventions (the "heartbeat" tag) are applied from each
// response's own channel field.
type ChannelsConfig struct {
	Enabled []string `json:"enabled,omitempty"`
}

// ModelsConfig holds the default provider and per-provider model ids.
type ModelsConfig struct {
	Provider  string         `json:"provider,omitempty"`
	Anthropic AnthropicModel `json:"anthropic,omitempty"`
	OpenAI    OpenAIModel    `json:"openai,omitempty"`
}

// AnthropicModel is the default Claude model friendly name.
type AnthropicModel struct {
	Model string `json:"model,omitempty"`
}

// OpenAIModel is the default Codex model friendly name.
type OpenAIModel struct {
	Model string `json:"model,omitempty"`
}

// AgentSpec is a single agent's configuration, keyed by id under
// Config.Agents.
type AgentSpec struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"` // "anthropic" | "openai"
	Model             string `json:"model,omitempty"`
	WorkingDirectory  string `json:"working_directory"`
	SandboxModeOverride string `json:"sandbox_mode,omitempty"`
}

// ResolvedModel returns the configured default model for provider:
// models.openai.model for "openai", models.anthropic.model otherwise.
// Callers use it only when the agent's own Model is empty.
func (m ModelsConfig) ResolvedModel(provider string) string {
	switch provider {
	case "openai":
		return m.OpenAI.Model
	default:
		return m.Anthropic.Model
	}
}

// TeamSpec is a named set of agents sharing a leader.
type TeamSpec struct {
	Name        string   `json:"name"`
	Agents      []string `json:"agents"`
	LeaderAgent string   `json:"leader_agent"`
}

// Validate checks the agents↔teams invariants named in the data model:
// every agent referenced by a team must exist, and a team's leader must
// be a member of that same team.
func (c *Config) Validate() error {
	for id, team := range c.Teams {
		if len(team.Agents) == 0 {
			return fmt.Errorf("team %q: agents must be non-empty", id)
		}
		leaderOK := false
		for _, agentID := range team.Agents {
			if _, ok := c.Agents[agentID]; !ok {
				return fmt.Errorf("team %q: agent %q is not defined", id, agentID)
			}
			if agentID == team.LeaderAgent {
				leaderOK = true
			}
		}
		if !leaderOK {
			return fmt.Errorf("team %q: leader_agent %q is not a member of agents", id, team.LeaderAgent)
		}
	}
	return nil
}

// SandboxConfig is the normalized single source of truth for sandbox
// policy; per-agent overrides are merged against this default elsewhere.
type SandboxConfig struct {
	Mode            string   `json:"mode,omitempty"` // "host" (default) | "docker" | "apple"
	TimeoutSeconds  int      `json:"timeout_seconds,omitempty"`
	MaxAttempts     int      `json:"max_attempts,omitempty"`
	MaxConcurrency  int      `json:"max_concurrency,omitempty"` // 0 = unbounded, applies when mode != host
	EnvAllowlist    []string `json:"env_allowlist,omitempty"`
	PathMappingMode string   `json:"path_mapping_mode,omitempty"` // "mapped" (default) | "same-path"

	Docker ContainerRuntimeConfig `json:"docker,omitempty"`
	Apple  ContainerRuntimeConfig `json:"apple,omitempty"`

	// HeartbeatDedupWindowSeconds governs how long identical heartbeat
	// errors are suppressed from the structured log (default 60).
	HeartbeatDedupWindowSeconds int `json:"heartbeat_dedup_window,omitempty"`
}

// ToSandboxConfig converts the normalized settings-document sandbox
// config into internal/sandbox's runtime Config, applying agentID's
// sandbox_mode override if one is set. This is the single place that
// merges the default document against a per-agent override.
func (c *Config) ToSandboxConfig(agentID string) sandbox.Config {
	mode := c.Sandbox.Mode
	if agent, ok := c.Agents[agentID]; ok && agent.SandboxModeOverride != "" {
		mode = agent.SandboxModeOverride
	}

	cfg := sandbox.Config{
		Mode:            sandbox.Mode(mode),
		TimeoutSeconds:  c.Sandbox.TimeoutSeconds,
		MaxConcurrency:  c.Sandbox.MaxConcurrency,
		EnvAllowlist:    c.Sandbox.EnvAllowlist,
		PathMappingMode: sandbox.PathMappingMode(c.Sandbox.PathMappingMode),
	}

	rt := c.Sandbox.Docker
	if mode == "apple" {
		rt = c.Sandbox.Apple
	}
	cfg.Image = rt.Image
	cfg.Network = rt.Network
	cfg.MemoryMB = rt.MemoryMB
	cfg.CPUs = rt.CPUs
	cfg.PidsLimit = rt.PidsLimit
	if rt.RuntimeCommand != "" {
		cfg.RuntimeCommand = rt.RuntimeCommand
	} else if mode == "apple" {
		cfg.RuntimeCommand = "container"
	} else {
		cfg.RuntimeCommand = "docker"
	}

	return cfg
}

// ContainerRuntimeConfig configures one container runtime (docker or
// apple); fields not meaningful to a runtime are simply ignored.
type ContainerRuntimeConfig struct {
	Image          string  `json:"image,omitempty"`
	Network        string  `json:"network,omitempty"` // "default" | "restricted" | "none" (rejected)
	MemoryMB       int     `json:"memory_mb,omitempty"`
	CPUs           float64 `json:"cpus,omitempty"`
	PidsLimit      int     `json:"pids_limit,omitempty"`
	RuntimeCommand string  `json:"runtime_command,omitempty"` // binary name, e.g. "docker" or "container"
}

// TelemetryConfig configures OpenTelemetry span export for sandbox
// invocations and chain steps.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the config-reload watcher to hot-swap a freshly parsed document
// without invalidating pointers callers already hold to c.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Workspace = src.Workspace
	c.Channels = src.Channels
	c.Models = src.Models
	c.Agents = src.Agents
	c.Teams = src.Teams
	c.Sandbox = src.Sandbox
	c.Telemetry = src.Telemetry
}

// Snapshot returns a shallow copy safe for concurrent read access.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Workspace: c.Workspace,
		Channels:  c.Channels,
		Models:    c.Models,
		Agents:    c.Agents,
		Teams:     c.Teams,
		Sandbox:   c.Sandbox,
		Telemetry: c.Telemetry,
	}
}
