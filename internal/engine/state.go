// Package engine retains the teacher's tool-facing bookkeeping types; see
// types.go for why this package is now much smaller than in the teacher.

package engine

import "github.com/tunacode-sh/tunacode/internal/message"

// Phase represents the current phase of the agent's work.
type Phase string

const (
	PhaseExplore         Phase = "explore"
	PhaseDiscoverAndPlan Phase = "discover_and_plan"
	PhaseEdit            Phase = "edit"
	PhaseValidate        Phase = "validate"
)

// State is the per-request bookkeeping the orchestrator hands the concrete
// tools via context (key "engine_state"): phase detection, the mini-plan,
// and the soft-cap counters. It is NOT the session state (sessionstore.Session
// owns that) — State is scratch space scoped to a single ProcessRequest call.
type State struct {
	History  []ChatMessage
	Step     int
	Retries  int
	Done     bool
	Phase    Phase
	Model    string
	MaxSteps int
	Budget   BudgetConfig
	Totals   message.Usage // Accumulated token usage across all calls

	// Brain agent enhancements for SOTA behavior
	MiniPlan        *MiniPlan       // Internal plan
	ToolCallCount   int             // Total tool calls this run (for soft caps)
	FileReadCache   map[string]bool // Track which files have been read (avoid redundant reads)
	EditToolBlocked bool            // True if edits blocked (no plan yet)
	FailureCounts   map[string]int  // Track failures per tool/file (for soft caps)
}

func (s *State) Append(msg ChatMessage) { s.History = append(s.History, msg) }
