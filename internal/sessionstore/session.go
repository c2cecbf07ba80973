// Package sessionstore implements Session State (C2): the in-memory session
// container, its runtime-only Tool Call Registry, and atomic on-disk
// persistence.
//
// ADAPTED from session/model.go's Session struct, expanded with the fields
// spec §3/§6.2 require (user_config, current_model, files_in_context,
// session_total_usage, compaction record) that the teacher's Session did not
// carry.
package sessionstore

import (
	"sync"
	"time"

	"github.com/tunacode-sh/tunacode/internal/message"
)

// ToolCallStatus is the lifecycle state of one registry entry (§3).
type ToolCallStatus string

const (
	StatusPending   ToolCallStatus = "PENDING"
	StatusRunning   ToolCallStatus = "RUNNING"
	StatusCompleted ToolCallStatus = "COMPLETED"
	StatusFailed    ToolCallStatus = "FAILED"
	StatusCancelled ToolCallStatus = "CANCELLED"
)

// ToolCallEntry is one row of the Tool Call Registry.
type ToolCallEntry struct {
	ToolCallID    string
	ToolName      string
	Args          map[string]any
	Status        ToolCallStatus
	StartedAt     time.Time
	EndedAt       time.Time
	ResultContent string
	IsError       bool
	Attempts      int
}

// ToolCallRegistry is the ordered map tool_call_id -> entry described in §3.
// Order is preserved via a parallel id slice since Go maps are unordered.
type ToolCallRegistry struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*ToolCallEntry
}

func NewToolCallRegistry() *ToolCallRegistry {
	return &ToolCallRegistry{entries: make(map[string]*ToolCallEntry)}
}

func (r *ToolCallRegistry) Register(id, name string, args map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return
	}
	r.order = append(r.order, id)
	r.entries[id] = &ToolCallEntry{ToolCallID: id, ToolName: name, Args: args, Status: StatusPending}
}

func (r *ToolCallRegistry) MarkRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.Status = StatusRunning
		e.StartedAt = time.Now().UTC()
	}
}

func (r *ToolCallRegistry) MarkDone(id string, result string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		if isError {
			e.Status = StatusFailed
		} else {
			e.Status = StatusCompleted
		}
		e.ResultContent = result
		e.IsError = isError
		e.EndedAt = time.Now().UTC()
	}
}

func (r *ToolCallRegistry) Get(id string) (ToolCallEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ToolCallEntry{}, false
	}
	return *e, true
}

// CancelAllNonTerminal marks every entry not already COMPLETED/FAILED as
// CANCELLED (§5 abort cleanup, §8 invariant 8).
func (r *ToolCallRegistry) CancelAllNonTerminal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		e := r.entries[id]
		switch e.Status {
		case StatusCompleted, StatusFailed, StatusCancelled:
			continue
		default:
			e.Status = StatusCancelled
			e.EndedAt = time.Now().UTC()
		}
	}
}

func (r *ToolCallRegistry) Entries() []ToolCallEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ToolCallEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// CompactionRecord is the C5 record embedded in session state (§3).
type CompactionRecord struct {
	SummaryText           string
	CompactedAt           time.Time
	OriginalMessageCount  int
	RetainedMessageCount  int
	TokensBefore          int
	TokensAfter           int
	GenerationCount       int
}

// Runtime is the ephemeral, never-persisted portion of session state (§3):
// current iteration and tool call registry.
type Runtime struct {
	Iteration int
	Registry  *ToolCallRegistry
}

// Session owns a conversation's durable and runtime state (§3). All mutation
// of Messages/SessionTotalUsage/Compaction happens only through the
// orchestrator or explicit session commands (clear/resume/compact); Session
// itself does not re-enter the orchestrator.
type Session struct {
	mu sync.Mutex

	SessionID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CurrentModel  string
	UserConfig    map[string]any
	Messages      []message.Message
	FilesInContext map[string]struct{}
	SessionTotalUsage message.Usage
	Compaction    *CompactionRecord

	// Title is the optional human-readable session title a TitleGenerator
	// fills in after the first exchange (see summary.go). Empty until then.
	Title string

	Runtime Runtime

	// seenUsagePayloads de-dups usage payload identities (§3, §8 invariant 4).
	seenUsagePayloads map[string]struct{}
}

// New creates a fresh session with the given id and model.
func New(sessionID, currentModel string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:         sessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
		CurrentModel:      currentModel,
		UserConfig:        map[string]any{},
		FilesInContext:    map[string]struct{}{},
		seenUsagePayloads: map[string]struct{}{},
		Runtime:           Runtime{Registry: NewToolCallRegistry()},
	}
}

// AppendMessage appends m to history under lock.
func (s *Session) AppendMessage(m message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now().UTC()
}

// AddUsage accumulates u into SessionTotalUsage exactly once per payloadID,
// implementing the de-dup guard of §3/§8 invariant 4.
func (s *Session) AddUsage(payloadID string, u message.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payloadID != "" {
		if _, seen := s.seenUsagePayloads[payloadID]; seen {
			return
		}
		s.seenUsagePayloads[payloadID] = struct{}{}
	}
	s.SessionTotalUsage = s.SessionTotalUsage.Add(u)
}

// SetTitle records a generated session title under lock. Callers only
// invoke this after the title is already decided (TitleGenerator), so the
// last call wins rather than the first — a second invocation (e.g. after a
// session resume) is allowed to refresh a stale title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Title = title
}

// AddFileInContext records path as touched during this session.
func (s *Session) AddFileInContext(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesInContext[path] = struct{}{}
}

// SortedFilesInContext returns files_in_context as a sorted slice, the
// persisted form required by §3/§6.2.
func (s *Session) SortedFilesInContext() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.FilesInContext))
	for f := range s.FilesInContext {
		out = append(out, f)
	}
	sortStrings(out)
	return out
}

// ReplacePrefix swaps messages[0:boundary] for a single summary message,
// leaving messages[boundary:] untouched, implementing the Compaction
// Controller's "Apply" step (§4.5). Callers pass the already-computed
// boundary and summary message; ReplacePrefix never decides policy itself.
func (s *Session) ReplacePrefix(boundary int, summary message.Message, rec CompactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	retained := append([]message.Message{}, s.Messages[boundary:]...)
	s.Messages = append([]message.Message{summary}, retained...)
	if s.Compaction != nil {
		rec.GenerationCount = s.Compaction.GenerationCount + 1
	} else {
		rec.GenerationCount = 1
	}
	s.Compaction = &rec
	s.UpdatedAt = time.Now().UTC()
}

// SnapshotMessages returns a copy of the current history, safe to hand to a
// compaction pass or a provider call without holding the session lock.
func (s *Session) SnapshotMessages() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message{}, s.Messages...)
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
