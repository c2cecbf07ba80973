// Package message defines the canonical message model (C1): a typed sum type
// over roles and part kinds, with a single serializer that is the only
// translation boundary to and from dict form. Parts are a closed set of
// kinds dispatched on a tag field rather than runtime type assertions.
package message

import (
	"encoding/json"
	"fmt"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSystem     Role = "system"
	RoleToolResult Role = "tool_result"
)

func (r Role) valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleToolResult:
		return true
	}
	return false
}

// PartKind tags the variant held by a Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartThinking   PartKind = "thinking"
	PartImage      PartKind = "image"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// Part is a tagged union over the five part kinds. Exactly the fields
// relevant to Kind are populated; callers MUST switch on Kind rather than
// probe for zero values, since zero values are themselves valid content.
type Part struct {
	Kind PartKind

	// PartText / PartThinking
	Text string

	// PartImage (pass-through, out of scope for core logic)
	ImageRef string

	// PartToolCall
	ToolCallID string
	ToolName   string
	Args       map[string]any

	// PartToolResult
	ToolResultContent string
	IsError           bool
}

func NewText(s string) Part     { return Part{Kind: PartText, Text: s} }
func NewThinking(s string) Part { return Part{Kind: PartThinking, Text: s} }
func NewImage(ref string) Part  { return Part{Kind: PartImage, ImageRef: ref} }

func NewToolCall(id, name string, args map[string]any) Part {
	return Part{Kind: PartToolCall, ToolCallID: id, ToolName: name, Args: args}
}

func NewToolResult(id, content string, isError bool) Part {
	return Part{Kind: PartToolResult, ToolCallID: id, ToolResultContent: content, IsError: isError}
}

// Message is a role plus an ordered list of Parts.
type Message struct {
	Role  Role
	Parts []Part
}

// ToolCallIDs returns every tool_call_id announced by tool_call parts in
// this message, in order.
func (m Message) ToolCallIDs() []string {
	var ids []string
	for _, p := range m.Parts {
		if p.Kind == PartToolCall {
			ids = append(ids, p.ToolCallID)
		}
	}
	return ids
}

// ToolResultIDs returns every tool_call_id answered by tool_result parts in
// this message, in order.
func (m Message) ToolResultIDs() []string {
	var ids []string
	for _, p := range m.Parts {
		if p.Kind == PartToolResult {
			ids = append(ids, p.ToolCallID)
		}
	}
	return ids
}

// Text concatenates all text parts, ignoring thinking/tool parts. Used for
// token estimation and transcript rendering.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// --- dict-form serialization -------------------------------------------------
//
// This is the ONLY translation boundary between the typed Message/Part model
// and the on-disk / wire dict representation. Session persistence (C2) and
// the StreamFn providers (C4) must go through these, never build map[string]any
// by hand elsewhere.

type dictPart struct {
	Kind       string         `json:"kind"`
	Text       string         `json:"text,omitempty"`
	ImageRef   string         `json:"image_ref,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Content    string         `json:"content,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
}

type dictMessage struct {
	Role  string     `json:"role"`
	Parts []dictPart `json:"parts"`
}

// ToDict renders m into its deterministic dict form.
func (m Message) ToDict() (map[string]any, error) {
	if !m.Role.valid() {
		return nil, fmt.Errorf("message: invalid role %q", m.Role)
	}
	dm := dictMessage{Role: string(m.Role)}
	for _, p := range m.Parts {
		dp, err := partToDict(p)
		if err != nil {
			return nil, err
		}
		dm.Parts = append(dm.Parts, dp)
	}
	raw, err := json.Marshal(dm)
	if err != nil {
		return nil, fmt.Errorf("message: marshal dict form: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("message: round-trip dict form: %w", err)
	}
	return generic, nil
}

func partToDict(p Part) (dictPart, error) {
	switch p.Kind {
	case PartText:
		return dictPart{Kind: string(PartText), Text: p.Text}, nil
	case PartThinking:
		return dictPart{Kind: string(PartThinking), Text: p.Text}, nil
	case PartImage:
		return dictPart{Kind: string(PartImage), ImageRef: p.ImageRef}, nil
	case PartToolCall:
		return dictPart{Kind: string(PartToolCall), ToolCallID: p.ToolCallID, ToolName: p.ToolName, Args: p.Args}, nil
	case PartToolResult:
		return dictPart{Kind: string(PartToolResult), ToolCallID: p.ToolCallID, Content: p.ToolResultContent, IsError: p.IsError}, nil
	default:
		return dictPart{}, fmt.Errorf("message: unknown part kind %q", p.Kind)
	}
}

// FromDict parses a generic dict (as decoded from JSON) into a Message. It
// fails loudly on any structural problem rather than defaulting fields.
func FromDict(d map[string]any) (Message, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Message{}, fmt.Errorf("message: re-marshal input dict: %w", err)
	}
	var dm dictMessage
	if err := json.Unmarshal(raw, &dm); err != nil {
		return Message{}, fmt.Errorf("message: decode dict form: %w", err)
	}
	role := Role(dm.Role)
	if !role.valid() {
		return Message{}, fmt.Errorf("message: invalid role %q", dm.Role)
	}
	m := Message{Role: role}
	for i, dp := range dm.Parts {
		p, err := partFromDict(dp)
		if err != nil {
			return Message{}, fmt.Errorf("message: part %d: %w", i, err)
		}
		m.Parts = append(m.Parts, p)
	}
	return m, nil
}

func partFromDict(dp dictPart) (Part, error) {
	switch PartKind(dp.Kind) {
	case PartText:
		return Part{Kind: PartText, Text: dp.Text}, nil
	case PartThinking:
		return Part{Kind: PartThinking, Text: dp.Text}, nil
	case PartImage:
		return Part{Kind: PartImage, ImageRef: dp.ImageRef}, nil
	case PartToolCall:
		if dp.ToolCallID == "" {
			return Part{}, fmt.Errorf("tool_call part missing tool_call_id")
		}
		return Part{Kind: PartToolCall, ToolCallID: dp.ToolCallID, ToolName: dp.ToolName, Args: dp.Args}, nil
	case PartToolResult:
		if dp.ToolCallID == "" {
			return Part{}, fmt.Errorf("tool_result part missing tool_call_id")
		}
		return Part{Kind: PartToolResult, ToolCallID: dp.ToolCallID, ToolResultContent: dp.Content, IsError: dp.IsError}, nil
	default:
		return Part{}, fmt.Errorf("unknown part kind %q", dp.Kind)
	}
}
