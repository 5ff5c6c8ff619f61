// Package queue implements the file-backed message queue: four
// directories (incoming, processing, outgoing, dead-letter) whose atomic
// renames define the state machine a message moves through.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

// Store is the file-backed queue rooted at a single "queue" directory.
type Store struct {
	root string
}

// New creates (if absent) and returns a Store rooted at dir, ensuring all
// four state directories exist per the on-disk invariants.
func New(dir string) (*Store, error) {
	s := &Store{root: dir}
	for _, sub := range []string{"incoming", "processing", "outgoing", "dead-letter"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", sub, err)
		}
	}
	return s, nil
}

func (s *Store) incomingDir() string    { return filepath.Join(s.root, "incoming") }
func (s *Store) processingDir() string  { return filepath.Join(s.root, "processing") }
func (s *Store) outgoingDir() string    { return filepath.Join(s.root, "outgoing") }
func (s *Store) deadLetterDir() string  { return filepath.Join(s.root, "dead-letter") }

// Claimed is one file discovered in incoming/, named and timestamped so
// callers can order work by arrival.
type Claimed struct {
	Name    string
	ModTime time.Time
}

// ListIncoming returns the names of files currently in incoming/, sorted
// by modification time ascending — the order messages must be claimed in
// to satisfy the per-agent ordering guarantee.
func (s *Store) ListIncoming() ([]Claimed, error) {
	entries, err := os.ReadDir(s.incomingDir())
	if err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	out := make([]Claimed, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Claimed{Name: e.Name(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// PeekIncoming reads and parses incoming/name without claiming it, so
// the caller can classify a message (e.g. by target agent) before
// deciding which worker should eventually claim it.
func (s *Store) PeekIncoming(name string) (*protocol.Message, error) {
	data, err := os.ReadFile(filepath.Join(s.incomingDir(), name))
	if err != nil {
		return nil, fmt.Errorf("peek incoming message %s: %w", name, err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse peeked message %s: %w", name, err)
	}
	return &msg, nil
}

// Claim atomically moves incoming/name to processing/name. Once this
// returns nil, the file is owned by exactly one in-flight invocation.
func (s *Store) Claim(name string) (*protocol.Message, error) {
	src := filepath.Join(s.incomingDir(), name)
	dst := filepath.Join(s.processingDir(), name)

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read incoming message %s: %w", name, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, fmt.Errorf("claim message %s: %w", name, err)
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse claimed message %s: %w", name, err)
	}
	return &msg, nil
}

// Complete deletes processing/name after a successful invocation.
func (s *Store) Complete(name string) error {
	if err := os.Remove(filepath.Join(s.processingDir(), name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("complete message %s: %w", name, err)
	}
	return nil
}

// Requeue rewrites the message at its new attempt count and moves it
// from processing back to incoming, for a transient failure that still
// has attempts remaining.
func (s *Store) Requeue(name string, msg *protocol.Message) error {
	path := filepath.Join(s.processingDir(), name)
	if err := writeJSONAtomic(path, msg); err != nil {
		return fmt.Errorf("requeue message %s: %w", name, err)
	}
	if err := os.Rename(path, filepath.Join(s.incomingDir(), name)); err != nil {
		return fmt.Errorf("requeue message %s: %w", name, err)
	}
	return nil
}

// DeadLetter writes a dead-letter record for name and removes the
// processing file. The dead-letter filename incorporates the original
// basename and the current epoch so repeated failures never collide.
func (s *Store) DeadLetter(name string, record *protocol.DeadLetter) error {
	base := trimExt(name)
	dest := filepath.Join(s.deadLetterDir(), fmt.Sprintf("%s_%d.json", base, time.Now().UnixMilli()))
	if err := writeJSONAtomic(dest, record); err != nil {
		return fmt.Errorf("write dead-letter for %s: %w", name, err)
	}
	if err := os.Remove(filepath.Join(s.processingDir(), name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove processing file for dead-lettered message %s: %w", name, err)
	}
	return nil
}

// PublishResponse writes resp atomically to outgoing/, using the
// heartbeat-channel naming rule when applicable.
func (s *Store) PublishResponse(resp *protocol.Response) error {
	name := ResponseFilename(resp.Channel, resp.MessageID, time.Now().UnixMilli())
	path := filepath.Join(s.outgoingDir(), name)
	if err := writeJSONAtomic(path, resp); err != nil {
		return fmt.Errorf("publish response: %w", err)
	}
	return nil
}

// ResponseFilename implements the outgoing filename convention: for the
// heartbeat channel it's bare <messageId>.json; for every other channel
// it includes the channel tag and a creation-epoch suffix to avoid
// collisions across retries.
func ResponseFilename(channel, messageID string, epochMs int64) string {
	if channel == "heartbeat" {
		return fmt.Sprintf("%s.json", messageID)
	}
	return fmt.Sprintf("%s_%s_%d.json", channel, messageID, epochMs)
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-then-
// rename so readers never observe a partially written file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "queue-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
