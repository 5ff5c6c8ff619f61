package sandbox

import (
	"strings"
	"testing"
)

func TestClassifyStderr(t *testing.T) {
	cases := []struct {
		stderr string
		want   Classification
	}{
		{"Error: invalid reference format", ClassTerminal},
		{"docker: unknown flag: --bogus", ClassTerminal},
		{"exec: \"foo\": executable file not found in $PATH", ClassTerminal},
		{"Error response from daemon: permission denied", ClassTerminal},
		{"temporary network failure, retry later", ClassTransient},
		{"connection reset by peer", ClassTransient},
	}
	for _, c := range cases {
		if got := classifyStderr(c.stderr); got != c.want {
			t.Errorf("classifyStderr(%q) = %q, want %q", c.stderr, got, c.want)
		}
	}
}

func TestResolvePathMappingMapped(t *testing.T) {
	dir, mappings := resolvePathMapping(PathMappingMapped, "/home/user/work")
	if dir != "/workspace" {
		t.Fatalf("want /workspace, got %s", dir)
	}
	if len(mappings) != 1 || mappings[0].ContainerPrefix != "/workspace" || mappings[0].HostPrefix != "/home/user/work" {
		t.Fatalf("unexpected mapping: %+v", mappings)
	}
}

func TestResolvePathMappingSamePath(t *testing.T) {
	dir, mappings := resolvePathMapping(PathMappingSamePath, "/home/user/work")
	if dir != "/home/user/work" {
		t.Fatalf("want same path, got %s", dir)
	}
	if len(mappings) != 1 || mappings[0].ContainerPrefix != mappings[0].HostPrefix {
		t.Fatalf("unexpected mapping: %+v", mappings)
	}
}

func TestBuildArgvDockerContract(t *testing.T) {
	cfg := Config{
		RuntimeCommand: "docker",
		Network:        "default",
		MemoryMB:       512,
		CPUs:           1.5,
		PidsLimit:      256,
		Image:          "tinyclaw-sandbox:bookworm-slim",
		EnvAllowlist:   []string{"ANTHROPIC_API_KEY"},
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	args := buildArgv(cfg, Request{Command: "claude", Args: []string{"-p", "hi"}, WorkingDir: "/home/u/work"}, "/workspace")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"run --rm", "--workdir /workspace", "--network bridge", "--memory 512m", "--cpus 1.5",
		"--pull missing", "--pids-limit 256", "--security-opt no-new-privileges", "--cap-drop ALL",
		"--read-only", "--tmpfs /tmp:rw,noexec,nosuid,size=256m", "--user 1000:1000",
		"--volume /home/u/work:/workspace", "--env HOME=/workspace/.tinyclaw-home",
		"--env ANTHROPIC_API_KEY=sk-test", "tinyclaw-sandbox:bookworm-slim claude -p hi",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q; got %q", want, joined)
		}
	}
}

func TestBuildArgvAppleOmitsDockerOnlyFlags(t *testing.T) {
	cfg := Config{RuntimeCommand: "container", Network: "default", MemoryMB: 256, CPUs: 1, Image: "img"}
	args := buildArgv(cfg, Request{Command: "codex", WorkingDir: "/w"}, "/w")
	joined := strings.Join(args, " ")
	for _, unwanted := range []string{"--pull", "--pids-limit", "--cap-drop", "--read-only", "--tmpfs"} {
		if strings.Contains(joined, unwanted) {
			t.Errorf("apple argv should not contain %q; got %q", unwanted, joined)
		}
	}
}

func TestPreflightRejectsMissingAllowlistEntry(t *testing.T) {
	cfg := Config{Network: "default"}
	err := Preflight(cfg, "anthropic")
	if err == nil || !IsTerminal(err) {
		t.Fatalf("expected terminal preflight error, got %v", err)
	}
}

func TestPreflightRejectsNoneNetwork(t *testing.T) {
	cfg := Config{Network: "none", EnvAllowlist: []string{"ANTHROPIC_API_KEY"}}
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	err := Preflight(cfg, "anthropic")
	if err == nil || !IsTerminal(err) {
		t.Fatalf("expected terminal preflight error for network none, got %v", err)
	}
}

func TestRedact(t *testing.T) {
	in := "failed: ANTHROPIC_API_KEY=sk-ant-12345 OPENAI_API_KEY=sk-oai-678"
	out := Redact(in)
	if strings.Contains(out, "sk-ant") || strings.Contains(out, "sk-oai") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "ANTHROPIC_API_KEY=[REDACTED]") {
		t.Fatalf("missing redaction marker: %s", out)
	}
}
