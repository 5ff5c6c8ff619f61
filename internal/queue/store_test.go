package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func writeIncoming(t *testing.T, s *Store, name string, msg protocol.Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.incomingDir(), name), data, 0o644); err != nil {
		t.Fatalf("write incoming: %v", err)
	}
}

func TestClaimMovesToProcessing(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "m1.json", protocol.Message{MessageID: "m1", Message: "hi"})

	msg, err := s.Claim("m1.json")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if msg.MessageID != "m1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := os.Stat(filepath.Join(s.incomingDir(), "m1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected incoming file removed, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(s.processingDir(), "m1.json")); err != nil {
		t.Fatalf("expected processing file present: %v", err)
	}
}

func TestCompleteRemovesProcessingFile(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "m1.json", protocol.Message{MessageID: "m1"})
	if _, err := s.Claim("m1.json"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Complete("m1.json"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.processingDir(), "m1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected processing file removed")
	}
}

func TestRequeueIncrementsAndMovesBack(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "m1.json", protocol.Message{MessageID: "m1", Attempt: 0})
	msg, err := s.Claim("m1.json")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	msg.Attempt++
	if err := s.Requeue("m1.json", msg); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.incomingDir(), "m1.json"))
	if err != nil {
		t.Fatalf("expected file back in incoming: %v", err)
	}
	var got protocol.Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", got.Attempt)
	}
}

func TestDeadLetterWritesRecordAndRemovesProcessing(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "m1.json", protocol.Message{MessageID: "m1"})
	msg, err := s.Claim("m1.json")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	record := &protocol.DeadLetter{
		FailedAt:     "2026-01-01T00:00:00Z",
		ErrorClass:   protocol.ErrorClassTerminal,
		ErrorMessage: "boom",
		Attempt:      1,
		MaxAttempts:  3,
		Payload:      *msg,
	}
	if err := s.DeadLetter("m1.json", record); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.processingDir(), "m1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected processing file removed")
	}
	entries, err := os.ReadDir(s.deadLetterDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one dead-letter file, got %v err=%v", entries, err)
	}
}

func TestResponseFilenameHeartbeatVsOther(t *testing.T) {
	if got := ResponseFilename("heartbeat", "m1", 1234); got != "m1.json" {
		t.Fatalf("heartbeat filename: got %s", got)
	}
	if got := ResponseFilename("telegram", "m1", 1234); got != "telegram_m1_1234.json" {
		t.Fatalf("channel filename: got %s", got)
	}
}

func TestRecoverCrashedMovesProcessingBackToIncoming(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "m1.json", protocol.Message{MessageID: "m1"})
	if _, err := s.Claim("m1.json"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	n, err := s.RecoverCrashed()
	if err != nil {
		t.Fatalf("RecoverCrashed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(s.incomingDir(), "m1.json")); err != nil {
		t.Fatalf("expected message back in incoming: %v", err)
	}
	entries, err := os.ReadDir(s.processingDir())
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected processing empty, got %v err=%v", entries, err)
	}
}

func TestPeekIncomingDoesNotClaim(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "m1.json", protocol.Message{MessageID: "m1", Agent: "coder"})

	msg, err := s.PeekIncoming("m1.json")
	if err != nil {
		t.Fatalf("PeekIncoming: %v", err)
	}
	if msg.Agent != "coder" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := os.Stat(filepath.Join(s.incomingDir(), "m1.json")); err != nil {
		t.Fatalf("expected file to remain in incoming: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.processingDir(), "m1.json")); !os.IsNotExist(err) {
		t.Fatalf("peek must not claim the file")
	}
}

func TestListIncomingSortedByModTime(t *testing.T) {
	s := newTestStore(t)
	writeIncoming(t, s, "a.json", protocol.Message{MessageID: "a"})
	writeIncoming(t, s, "b.json", protocol.Message{MessageID: "b"})

	// b.json is written second but given the older mtime, so it must sort first.
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(s.incomingDir(), "b.json"), older, older); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	claimed, err := s.ListIncoming()
	if err != nil {
		t.Fatalf("ListIncoming: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(claimed))
	}
	if claimed[0].Name != "b.json" || claimed[1].Name != "a.json" {
		t.Fatalf("expected [b.json a.json] by mtime, got [%s %s]", claimed[0].Name, claimed[1].Name)
	}
}
