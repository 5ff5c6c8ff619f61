package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

// handleFailure implements the §4.7 propagation policy for an error
// raised anywhere during chain processing: sanitize, classify, and
// either requeue with an incremented attempt or dead-letter plus a
// synthesized user-visible response.
func (o *Orchestrator) handleFailure(msg *protocol.Message, name string, err error) {
	sanitized := sandbox.Redact(err.Error())
	errClass := classify(err)

	logErr := true
	if msg.Channel == "heartbeat" {
		logErr = o.heartbeats.shouldLog(sanitized)
	}

	maxAttempts := o.cfg.Snapshot().Sandbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	if errClass == protocol.ErrorClassTransient && msg.Attempt+1 < maxAttempts {
		if logErr {
			o.logger.Warn("transient failure, requeuing", "file", name, "attempt", msg.Attempt+1, "error", sanitized)
		}
		msg.Attempt++
		msg.ErrorClass = errClass
		if rqErr := o.store.Requeue(name, msg); rqErr != nil {
			o.logger.Error("requeue failed", "file", name, "error", rqErr)
		}
		return
	}

	if logErr {
		o.logger.Error("message failed, writing dead-letter", "file", name, "class", errClass, "error", sanitized)
	}

	record := &protocol.DeadLetter{
		FailedAt:     time.Now().UTC().Format(time.RFC3339),
		ErrorClass:   errClass,
		ErrorMessage: sanitized,
		Attempt:      msg.Attempt + 1,
		MaxAttempts:  maxAttempts,
		Payload:      *msg,
	}
	if dlErr := o.store.DeadLetter(name, record); dlErr != nil {
		o.logger.Error("write dead-letter failed", "file", name, "error", dlErr)
	}

	o.publishFinal(msg, name, msg.Agent, userMessageFor(err), nil)
}

const genericFailureMessage = "Something went wrong while processing your message. It has been logged for review."

// heartbeatDedupWindowLen is how much of an error message is used as the
// dedup key, per the fixed "first 160 chars" rule.
const heartbeatDedupWindowLen = 160

// heartbeatDedup suppresses repeated identical heartbeat-channel errors
// within a rolling window so they don't flood the text log.
type heartbeatDedup struct {
	mu      sync.Mutex
	window  time.Duration
	lastSeen map[string]time.Time
}

func newHeartbeatDedup(window time.Duration) *heartbeatDedup {
	return &heartbeatDedup{window: window, lastSeen: make(map[string]time.Time)}
}

// shouldLog reports whether this error message should be logged now,
// and records the sighting if so.
func (d *heartbeatDedup) shouldLog(message string) bool {
	key := message
	if len(key) > heartbeatDedupWindowLen {
		key = key[:heartbeatDedupWindowLen]
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.lastSeen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.lastSeen[key] = now
	return true
}

// classify maps an error from chain/invocation processing to the
// transient/terminal taxonomy: a sandbox.InvocationError carries its own
// classification, every other error — including unexpected ones — is
// treated as transient per the propagation policy.
func classify(err error) protocol.ErrorClass {
	if sandbox.IsTerminal(err) {
		return protocol.ErrorClassTerminal
	}
	return protocol.ErrorClassTransient
}

// userMessageFor extracts the sandbox error's user-safe message, falling
// back to a generic one for unclassified errors.
func userMessageFor(err error) string {
	var ie *sandbox.InvocationError
	if errors.As(err, &ie) && ie.UserMessage != "" {
		return ie.UserMessage
	}
	return genericFailureMessage
}
