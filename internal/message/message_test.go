package message

import "testing"

func TestRoundTrip(t *testing.T) {
	m := Message{
		Role: RoleAssistant,
		Parts: []Part{
			NewText("hello "),
			NewToolCall("t1", "read_file", map[string]any{"path": "a.txt"}),
		},
	}
	d, err := m.ToDict()
	if err != nil {
		t.Fatalf("ToDict: %v", err)
	}
	got, err := FromDict(d)
	if err != nil {
		t.Fatalf("FromDict: %v", err)
	}
	if got.Role != m.Role {
		t.Fatalf("role mismatch: got %q want %q", got.Role, m.Role)
	}
	if len(got.Parts) != len(m.Parts) {
		t.Fatalf("part count mismatch: got %d want %d", len(got.Parts), len(m.Parts))
	}
	if got.Parts[1].ToolCallID != "t1" || got.Parts[1].ToolName != "read_file" {
		t.Fatalf("tool_call part mismatch: %+v", got.Parts[1])
	}
}

func TestFromDictRejectsInvalidRole(t *testing.T) {
	_, err := FromDict(map[string]any{"role": "bogus", "parts": []any{}})
	if err == nil {
		t.Fatal("expected error for invalid role, got nil")
	}
}

func TestFromDictRejectsToolCallMissingID(t *testing.T) {
	_, err := FromDict(map[string]any{
		"role": "assistant",
		"parts": []any{
			map[string]any{"kind": "tool_call", "tool_name": "x"},
		},
	})
	if err == nil {
		t.Fatal("expected error for tool_call missing tool_call_id, got nil")
	}
}

func TestToolCallAndResultIDs(t *testing.T) {
	m := Message{Role: RoleAssistant, Parts: []Part{
		NewToolCall("t1", "grep", nil),
		NewToolCall("t2", "grep", nil),
	}}
	ids := m.ToolCallIDs()
	if len(ids) != 2 || ids[0] != "t1" || ids[1] != "t2" {
		t.Fatalf("unexpected tool call ids: %v", ids)
	}

	r := Message{Role: RoleToolResult, Parts: []Part{NewToolResult("t1", "ok", false)}}
	rids := r.ToolResultIDs()
	if len(rids) != 1 || rids[0] != "t1" {
		t.Fatalf("unexpected tool result ids: %v", rids)
	}
}
