package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldResetConsumesGlobalFlag(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "agents", "a")
	os.MkdirAll(agentDir, 0o755)
	os.WriteFile(filepath.Join(root, "reset_flag"), nil, 0o644)

	if !shouldReset(root, agentDir, false) {
		t.Fatalf("expected reset from global flag")
	}
	if _, err := os.Stat(filepath.Join(root, "reset_flag")); !os.IsNotExist(err) {
		t.Fatalf("global reset flag should be consumed")
	}
}

func TestShouldResetIgnoresGlobalFlagWhenPerAgentOnly(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "agents", "a")
	os.MkdirAll(agentDir, 0o755)
	os.WriteFile(filepath.Join(root, "reset_flag"), nil, 0o644)

	if shouldReset(root, agentDir, true) {
		t.Fatalf("subsequent chain steps must not honor the global reset flag")
	}
	if _, err := os.Stat(filepath.Join(root, "reset_flag")); err != nil {
		t.Fatalf("global reset flag should be left untouched: %v", err)
	}
}

func TestShouldResetConsumesPerAgentFlag(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "agents", "a")
	os.MkdirAll(agentDir, 0o755)
	os.WriteFile(filepath.Join(agentDir, "reset_flag"), nil, 0o644)

	if !shouldReset(root, agentDir, true) {
		t.Fatalf("expected reset from per-agent flag")
	}
	if _, err := os.Stat(filepath.Join(agentDir, "reset_flag")); !os.IsNotExist(err) {
		t.Fatalf("per-agent reset flag should be consumed")
	}
}

func TestShouldResetFalseWhenNoFlags(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "agents", "a")
	os.MkdirAll(agentDir, 0o755)

	if shouldReset(root, agentDir, false) {
		t.Fatalf("expected no reset")
	}
}

func TestShouldResetConsumesBothFlagsWhenBothPresent(t *testing.T) {
	root := t.TempDir()
	agentDir := filepath.Join(root, "agents", "a")
	os.MkdirAll(agentDir, 0o755)
	os.WriteFile(filepath.Join(root, "reset_flag"), nil, 0o644)
	os.WriteFile(filepath.Join(agentDir, "reset_flag"), nil, 0o644)

	if !shouldReset(root, agentDir, false) {
		t.Fatalf("expected reset")
	}
	if _, err := os.Stat(filepath.Join(root, "reset_flag")); !os.IsNotExist(err) {
		t.Fatalf("global reset flag should be consumed, not left to leak into the next message")
	}
	if _, err := os.Stat(filepath.Join(agentDir, "reset_flag")); !os.IsNotExist(err) {
		t.Fatalf("per-agent reset flag should be consumed")
	}
}
