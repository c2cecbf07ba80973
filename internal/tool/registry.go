package tool

import (
	"context"
	"fmt"

	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

// Registry is a named set of tools, keyed by the tool's globally-unique
// name within a session (§4.1).
type Registry map[string]Tool

func (r Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r))
	for _, t := range r {
		out = append(out, Schema{Name: t.Name, Description: t.Description, JSONSchema: t.SchemaJSON, Retryable: t.Retryable})
	}
	return out
}

// Call runs tool `name` through its full C3 contract: schema binding,
// abort-signal check, execute, and the retry policy of §4.1. Binding
// failures and execution failures both funnel through the retry budget;
// exhausting it converts the last ToolRetryError into a ToolExecutionError.
//
// Call itself does not retry by calling the tool function again — retrying
// the underlying operation means sending the tool_result back to the model
// and letting it re-issue a corrected tool_call (§4.1's "model should try
// again"). What Call enforces is the *budget accounting*: a caller tracking
// attempts per tool_call_id uses attemptsSoFar to learn when the budget is
// exhausted and must report ToolExecutionError instead of ToolRetryError.
func (r Registry) Call(ctx context.Context, toolCallID, name string, args map[string]any, abort AbortSignal, onUpdate OnUpdate, attemptsSoFar int) AgentToolResult {
	t, ok := r[name]
	if !ok {
		return errResult(toolCallID, &tunaerr.ToolExecutionError{ToolName: name, Err: fmt.Errorf("unknown tool %q", name)})
	}

	if abort.Aborted() {
		return errResult(toolCallID, &tunaerr.ToolCancelled{ToolName: name, ToolCallID: toolCallID})
	}

	if err := t.ValidateArgs(args); err != nil {
		return r.classify(toolCallID, name, t, err, attemptsSoFar)
	}

	if t.Execute == nil {
		return errResult(toolCallID, &tunaerr.ToolExecutionError{ToolName: name, Err: fmt.Errorf("tool %q has no execute function", name)})
	}

	result := t.Execute(abort.Context(), toolCallID, args, abort, onUpdate)

	if abort.Aborted() && result.IsError {
		return errResult(toolCallID, &tunaerr.ToolCancelled{ToolName: name, ToolCallID: toolCallID})
	}
	if result.IsError && t.Retryable && attemptsSoFar >= t.retryBudget() {
		return errResult(toolCallID, &tunaerr.ToolExecutionError{ToolName: name, Err: fmt.Errorf("retry budget exhausted: %s", result.Content)})
	}
	return result
}

// classify applies the retry-budget rule: a ToolRetryError within budget is
// surfaced as-is (is_error=true, model may retry); once attemptsSoFar meets
// or exceeds the tool's retry budget, it is converted to ToolExecutionError
// (fatal for this call), per §4.1 "exhaustion converts to ToolExecutionError".
func (r Registry) classify(toolCallID, name string, t Tool, err error, attemptsSoFar int) AgentToolResult {
	if !tunaerr.Retryable(err) {
		return errResult(toolCallID, err)
	}
	if attemptsSoFar >= t.retryBudget() {
		return errResult(toolCallID, &tunaerr.ToolExecutionError{ToolName: name, Err: fmt.Errorf("retry budget exhausted: %w", err)})
	}
	return AgentToolResult{ToolCallID: toolCallID, Content: err.Error(), IsError: true}
}

func errResult(toolCallID string, err error) AgentToolResult {
	return AgentToolResult{ToolCallID: toolCallID, Content: err.Error(), IsError: true}
}
