package sessionstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tunacode-sh/tunacode/internal/message"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	id, err := NewSessionID("hello there friend", time.Now())
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	s := New(id, "anthropic:claude-3")
	s.AppendMessage(message.Message{Role: message.RoleUser, Parts: []message.Part{message.NewText("hi")}})
	s.AppendMessage(message.Message{Role: message.RoleAssistant, Parts: []message.Part{message.NewText("hello")}})
	s.AddUsage("payload-1", message.Usage{InputTokens: 5, OutputTokens: 1, TotalTokens: 6})
	s.AddFileInContext("b.txt")
	s.AddFileInContext("a.txt")

	if err := store.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(loaded.Messages))
	}
	if loaded.SessionTotalUsage.TotalTokens != 6 {
		t.Fatalf("got total_tokens=%d want 6", loaded.SessionTotalUsage.TotalTokens)
	}
	files := loaded.SortedFilesInContext()
	if len(files) != 2 || files[0] != "a.txt" || files[1] != "b.txt" {
		t.Fatalf("unexpected sorted files: %v", files)
	}

	if _, err := store.Load("nonexistent-session"); err == nil {
		t.Fatal("expected SessionCorruptionError for missing session")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	s := New("2026-07-31_00-00-00_test_abc123", "anthropic:claude-3")
	if err := store.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := filepath.Glob(filepath.Join(dir, s.SessionID, "*.tmp")); err != nil {
		t.Fatalf("glob: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, s.SessionID, "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("leftover temp file after save: %v", matches)
	}
}

func TestUsageDeDupByPayloadID(t *testing.T) {
	s := New("x", "m")
	s.AddUsage("p1", message.Usage{TotalTokens: 10})
	s.AddUsage("p1", message.Usage{TotalTokens: 10})
	if s.SessionTotalUsage.TotalTokens != 10 {
		t.Fatalf("expected de-dup, got total=%d", s.SessionTotalUsage.TotalTokens)
	}
	s.AddUsage("p2", message.Usage{TotalTokens: 5})
	if s.SessionTotalUsage.TotalTokens != 15 {
		t.Fatalf("expected accumulation, got total=%d", s.SessionTotalUsage.TotalTokens)
	}
}

func TestLegacySessionIDRecognized(t *testing.T) {
	if !LegacySessionID("550e8400-e29b-41d4-a716-446655440000") {
		t.Fatal("expected legacy UUID form to be recognized")
	}
	if LegacySessionID("2026-07-31_00-00-00_test_abc123") {
		t.Fatal("did not expect new-form id to be recognized as legacy")
	}
}
