// Package eventlog is the append-only JSON event stream under events/.
// Payload strings are passed through sandbox.Redact, the same secret
// sanitizer the structured text log applies.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

// Sink accepts events for durable storage.
type Sink interface {
	Emit(kind protocol.EventKind, messageID, agentID, teamID string, payload map[string]any) error
}

// FileSink writes one JSON line per event into a file named for the
// current UTC day, so operators can prune old days without an external
// rotation library.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink returns a FileSink rooted at dir, creating it if absent.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create events directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Emit appends a sanitized event record to today's events file.
func (s *FileSink) Emit(kind protocol.EventKind, messageID, agentID, teamID string, payload map[string]any) error {
	ev := protocol.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		MessageID: messageID,
		AgentID:   agentID,
		TeamID:    teamID,
		Payload:   sanitizePayload(payload),
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, time.Now().UTC().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// sanitizePayload redacts secret-looking values in every string field of
// payload before it's serialized, matching the text log's own sanitizer.
func sanitizePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = sandbox.Redact(s)
			continue
		}
		out[k] = v
	}
	return out
}
