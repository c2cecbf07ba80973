// Package streamfn defines the Stream Function Interface (C4): the
// provider-agnostic contract the orchestrator consumes, and the event
// vocabulary it recognizes. internal/providers/{anthropic,openai}.go each
// implement it independently.
package streamfn

import (
	"context"

	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/tool"
)

// EventKind tags the variant held by an Event (§4.2 table).
type EventKind string

const (
	EventMessageStart       EventKind = "message_start"
	EventTextDelta          EventKind = "text_delta"
	EventThinkingDelta      EventKind = "thinking_delta"
	EventToolCallStart      EventKind = "tool_call_start"
	EventToolCallDelta      EventKind = "tool_call_delta"
	EventToolCallEnd        EventKind = "tool_call_end"
	EventMessageEnd         EventKind = "message_end"
	EventToolExecutionStart EventKind = "tool_execution_start"
	EventToolExecutionEnd   EventKind = "tool_execution_end"
	EventTurnEnd            EventKind = "turn_end"
	EventAgentEnd           EventKind = "agent_end"
)

// Event is a tagged union over the eleven event kinds of §4.2. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventMessageStart
	Role message.Role

	// EventTextDelta / EventThinkingDelta
	Delta string

	// EventToolCallStart / EventToolCallDelta / EventToolCallEnd
	ToolCallID       string
	ToolName         string
	ArgsJSONFragment string

	// EventMessageEnd / EventTurnEnd: usage payload, when present, as a raw
	// dict still requiring message.ParseUsage — the fail-loud validation
	// boundary lives in the orchestrator's event dispatcher, not here.
	UsageRaw map[string]any
	UsageID  string // synthetic per-payload identity for de-dup (§9 design note)

	// EventToolExecutionStart / EventToolExecutionEnd
	Args      map[string]any
	Result    string
	IsError   bool

	// EventAgentEnd
	Messages []message.Message
}

// Options bundles the per-call knobs a StreamFn needs beyond the message
// history itself.
type Options struct {
	Model           string
	MaxOutputTokens int
	Abort           tool.AbortSignal
}

// StreamFn is the provider-agnostic async event stream contract (§4.2,
// §6.1). Implementations translate a canonical message history into their
// wire format, issue the call, and translate streamed wire events back into
// the canonical Event vocabulary above — this translation is the only place
// provider-specific shapes are allowed to leak.
type StreamFn interface {
	Stream(ctx context.Context, history []message.Message, tools tool.Registry, opts Options) (<-chan Event, <-chan error)
}
