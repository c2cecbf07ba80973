package sessionstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

const schemaVersion = 1

var slugSanitize = regexp.MustCompile(`[^a-z0-9-_]+`)

// NewSessionID generates a session id in the `YYYY-MM-DD_HH-MM-SS_<slug>_<shortid>`
// form of §6.2, derived from the first user message. When the message yields
// an empty slug, that segment is left out: `YYYY-MM-DD_HH-MM-SS_<shortid>`.
func NewSessionID(firstUserMessage string, now time.Time) (string, error) {
	shortID, err := randomHex(3)
	if err != nil {
		return "", fmt.Errorf("sessionstore: generate shortid: %w", err)
	}
	slug := slugify(firstUserMessage)
	ts := now.UTC().Format("2006-01-02_15-04-05")
	if slug == "" {
		return fmt.Sprintf("%s_%s", ts, shortID), nil
	}
	return fmt.Sprintf("%s_%s_%s", ts, slug, shortID), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugSanitize.ReplaceAllString(s, "")
	if len(s) > 20 {
		s = s[:20]
	}
	return strings.Trim(s, "-_")
}

// LegacySessionID reports whether id is a legacy UUID-form session id, which
// must remain loadable per §6.2's backward-tolerance requirement.
func LegacySessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Store persists sessions under <sessions_root>/<session_id>/state.json.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (st *Store) dir(sessionID string) string {
	return filepath.Join(st.Root, sessionID)
}

func (st *Store) statePath(sessionID string) string {
	return filepath.Join(st.dir(sessionID), "state.json")
}

// diskState mirrors the state.json schema of §6.2 exactly.
type diskState struct {
	SchemaVersion   int              `json:"schema_version"`
	SessionID       string           `json:"session_id"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
	CurrentModel    string           `json:"current_model"`
	Title           string           `json:"title,omitempty"`
	UserConfig      map[string]any   `json:"user_config"`
	Messages        []map[string]any `json:"messages"`
	FilesInContext  []string         `json:"files_in_context"`
	SessionTotalUsage map[string]any `json:"session_total_usage"`
	Compaction      *diskCompaction  `json:"compaction"`
	ChatTranscript  []chatTurn       `json:"chat_transcript"`
}

type diskCompaction struct {
	SummaryText          string `json:"summary_text"`
	CompactedAt          string `json:"compacted_at"`
	OriginalMessageCount int    `json:"original_message_count"`
	RetainedMessageCount int    `json:"retained_message_count"`
	TokensBefore         int    `json:"tokens_before"`
	TokensAfter          int    `json:"tokens_after"`
	GenerationCount      int    `json:"generation_count"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Save atomically writes s to <root>/<session_id>/state.json via
// write-temp-then-rename (§5, §6.2). Secrets, runtime handles, and
// transient streaming buffers are excluded by construction: diskState
// only ever carries the persisted fields of §3.
func (st *Store) Save(s *Session) error {
	msgs := s.SnapshotMessages()
	dictMsgs := make([]map[string]any, 0, len(msgs))
	for i, m := range msgs {
		d, err := m.ToDict()
		if err != nil {
			return fmt.Errorf("sessionstore: save %s: message %d: %w", s.SessionID, i, err)
		}
		dictMsgs = append(dictMsgs, d)
	}

	ds := diskState{
		SchemaVersion:     schemaVersion,
		SessionID:         s.SessionID,
		CreatedAt:         s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         s.UpdatedAt.Format(time.RFC3339),
		CurrentModel:      s.CurrentModel,
		Title:             s.Title,
		UserConfig:        s.UserConfig,
		Messages:          dictMsgs,
		FilesInContext:    s.SortedFilesInContext(),
		SessionTotalUsage: s.SessionTotalUsage.ToDict(),
		ChatTranscript:    renderTranscript(msgs),
	}
	if s.Compaction != nil {
		ds.Compaction = &diskCompaction{
			SummaryText:          s.Compaction.SummaryText,
			CompactedAt:          s.Compaction.CompactedAt.Format(time.RFC3339),
			OriginalMessageCount: s.Compaction.OriginalMessageCount,
			RetainedMessageCount: s.Compaction.RetainedMessageCount,
			TokensBefore:         s.Compaction.TokensBefore,
			TokensAfter:          s.Compaction.TokensAfter,
			GenerationCount:      s.Compaction.GenerationCount,
		}
	}

	dir := st.dir(s.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("sessionstore: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: marshal state: %w", err)
	}

	final := st.statePath(s.SessionID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("sessionstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("sessionstore: rename into place: %w", err)
	}
	return nil
}

// Load reads and validates a session's persisted state. Non-dict messages
// or any structural violation is a hard SessionCorruptionError (§6.2,
// §7): Load never substitutes defaults for invalid data.
func (st *Store) Load(sessionID string) (*Session, error) {
	path := st.statePath(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: err}
	}

	var ds diskState
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: fmt.Errorf("decode state.json: %w", err)}
	}

	s := New(ds.SessionID, ds.CurrentModel)
	if ds.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, ds.CreatedAt)
		if err != nil {
			return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: fmt.Errorf("created_at: %w", err)}
		}
		s.CreatedAt = t
	}
	if ds.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339, ds.UpdatedAt)
		if err != nil {
			return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: fmt.Errorf("updated_at: %w", err)}
		}
		s.UpdatedAt = t
	}
	s.Title = ds.Title
	s.UserConfig = ds.UserConfig
	if s.UserConfig == nil {
		s.UserConfig = map[string]any{}
	}

	for i, d := range ds.Messages {
		m, err := message.FromDict(d)
		if err != nil {
			return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: fmt.Errorf("message %d: %w", i, err)}
		}
		s.Messages = append(s.Messages, m)
	}

	for _, f := range ds.FilesInContext {
		s.FilesInContext[f] = struct{}{}
	}

	if ds.SessionTotalUsage != nil {
		u, err := message.ParseUsage(ds.SessionTotalUsage)
		if err != nil {
			return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: fmt.Errorf("session_total_usage: %w", err)}
		}
		s.SessionTotalUsage = u
	}

	if ds.Compaction != nil {
		rec := CompactionRecord{
			SummaryText:          ds.Compaction.SummaryText,
			OriginalMessageCount: ds.Compaction.OriginalMessageCount,
			RetainedMessageCount: ds.Compaction.RetainedMessageCount,
			TokensBefore:         ds.Compaction.TokensBefore,
			TokensAfter:          ds.Compaction.TokensAfter,
			GenerationCount:      ds.Compaction.GenerationCount,
		}
		if ds.Compaction.CompactedAt != "" {
			t, err := time.Parse(time.RFC3339, ds.Compaction.CompactedAt)
			if err != nil {
				return nil, &tunaerr.SessionCorruptionError{SessionID: sessionID, Err: fmt.Errorf("compacted_at: %w", err)}
			}
			rec.CompactedAt = t
		}
		s.Compaction = &rec
	}

	return s, nil
}

// List returns every session id under root, including legacy UUID-form ids.
func (st *Store) List() ([]string, error) {
	entries, err := os.ReadDir(st.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessionstore: list %s: %w", st.Root, err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(st.Root, e.Name(), "state.json")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func renderTranscript(msgs []message.Message) []chatTurn {
	out := make([]chatTurn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatTurn{Role: string(m.Role), Content: m.Text()})
	}
	return out
}
