package orchestrator

import (
	"github.com/tunacode-sh/tunacode/internal/message"
)

// TurnState is the overall turn state machine of §4.3: USER_INPUT ->
// ASSISTANT -> TOOL_EXECUTION -> RESPONSE -> [loop to ASSISTANT or
// terminate].
type TurnState string

const (
	TurnUserInput     TurnState = "USER_INPUT"
	TurnAssistant     TurnState = "ASSISTANT"
	TurnToolExecution TurnState = "TOOL_EXECUTION"
	TurnResponse      TurnState = "RESPONSE"
)

// validTransitions enumerates the only transitions §4.3 allows. It is
// consulted only through CanTransition; runStream does not check its own
// transitions against it, and nothing logs or raises on other transitions.
var validTransitions = map[TurnState][]TurnState{
	TurnUserInput:     {TurnAssistant},
	TurnAssistant:     {TurnToolExecution, TurnResponse},
	TurnToolExecution: {TurnAssistant, TurnResponse},
	TurnResponse:      {TurnAssistant, TurnUserInput},
}

// CanTransition reports whether from -> to is a legal turn-state edge.
func CanTransition(from, to TurnState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// toolCallPartial accumulates a tool_call's streamed fragments
// (tool_call_start/delta/end) until it is complete enough to register.
type toolCallPartial struct {
	id, name  string
	argsJSON  string
}

// StreamState is the explicit, owned-per-request state §9's design notes
// mandate in place of the source's implicit threading of "current assistant
// partial / current tool-call partials / last usage id" through callbacks.
// It is mutated only by runStream and its event dispatcher.
type StreamState struct {
	Turn TurnState

	AssistantText      string
	AssistantThinking  string
	ToolCallPartials   map[string]*toolCallPartial
	toolCallOrder      []string

	LastUsageID    string
	Iteration      int
	EmptyResponseIntervened bool

	FinalMessages []message.Message
}

func NewStreamState() *StreamState {
	return &StreamState{
		Turn:             TurnUserInput,
		ToolCallPartials: make(map[string]*toolCallPartial),
	}
}

func (s *StreamState) beginToolCall(id, name string) {
	s.ToolCallPartials[id] = &toolCallPartial{id: id, name: name}
	s.toolCallOrder = append(s.toolCallOrder, id)
}

func (s *StreamState) appendToolCallArgs(id, fragment string) {
	if p, ok := s.ToolCallPartials[id]; ok {
		p.argsJSON += fragment
	}
}

func (s *StreamState) resetTurnText() {
	s.AssistantText = ""
	s.AssistantThinking = ""
	s.ToolCallPartials = make(map[string]*toolCallPartial)
	s.toolCallOrder = nil
}
