package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

func TestClassifyTerminal(t *testing.T) {
	err := sandbox.Terminal(sandbox.ModeDocker, "bad image ref", "", errors.New("invalid reference format"))
	if classify(err) != protocol.ErrorClassTerminal {
		t.Fatalf("expected terminal classification")
	}
}

func TestClassifyTransientForUnclassifiedError(t *testing.T) {
	if classify(errors.New("boom")) != protocol.ErrorClassTransient {
		t.Fatalf("expected unclassified errors to be transient")
	}
}

func TestUserMessageForFallsBackOnPlainError(t *testing.T) {
	if got := userMessageFor(errors.New("boom")); got != genericFailureMessage {
		t.Fatalf("got %q", got)
	}
}

func TestUserMessageForUsesSandboxUserMessage(t *testing.T) {
	err := sandbox.Terminal(sandbox.ModeDocker, "runtime binary not found", "run the sandbox doctor", nil)
	if got := userMessageFor(err); got != "runtime binary not found" {
		t.Fatalf("got %q", got)
	}
}

func TestHeartbeatDedupSuppressesWithinWindow(t *testing.T) {
	d := newHeartbeatDedup(time.Minute)
	msg := "temporary network failure while talking to the provider"
	if !d.shouldLog(msg) {
		t.Fatalf("first sighting should log")
	}
	if d.shouldLog(msg) {
		t.Fatalf("second sighting within window should be suppressed")
	}
}

func TestHeartbeatDedupKeysOnFirst160Chars(t *testing.T) {
	d := newHeartbeatDedup(time.Minute)
	a := string(make([]byte, 200))
	b := a[:199] + "x"
	d.shouldLog(a)
	if d.shouldLog(b) {
		t.Fatalf("messages sharing the first 160 chars should be deduped together")
	}
}
