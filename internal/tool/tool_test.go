package tool

import (
	"context"
	"testing"

	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

func echoTool() Tool {
	return Tool{
		Name:       "echo",
		SchemaJSON: `{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`,
		Retryable:  true,
		Execute: func(ctx context.Context, toolCallID string, args map[string]any, abort AbortSignal, onUpdate OnUpdate) AgentToolResult {
			return AgentToolResult{ToolCallID: toolCallID, Content: args["msg"].(string)}
		},
	}
}

func TestCallSucceeds(t *testing.T) {
	r := Registry{"echo": echoTool()}
	abort := NewAbortSignal(context.Background())
	res := r.Call(context.Background(), "t1", "echo", map[string]any{"msg": "hi"}, abort, nil, 0)
	if res.IsError || res.Content != "hi" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCallUnknownToolIsFatal(t *testing.T) {
	r := Registry{}
	abort := NewAbortSignal(context.Background())
	res := r.Call(context.Background(), "t1", "missing", nil, abort, nil, 0)
	if !res.IsError {
		t.Fatal("expected error result for unknown tool")
	}
}

func TestCallSchemaViolationIsRetryableUntilBudgetExhausted(t *testing.T) {
	r := Registry{"echo": echoTool()}
	abort := NewAbortSignal(context.Background())

	res := r.Call(context.Background(), "t1", "echo", map[string]any{}, abort, nil, 0)
	if !res.IsError {
		t.Fatal("expected is_error=true on missing required arg")
	}

	res2 := r.Call(context.Background(), "t1", "echo", map[string]any{}, abort, nil, 3)
	if !res2.IsError {
		t.Fatal("expected is_error=true after budget exhausted")
	}
}

func TestCallAbortedBeforeExecute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Registry{"echo": echoTool()}
	abort := NewAbortSignal(ctx)
	res := r.Call(ctx, "t1", "echo", map[string]any{"msg": "hi"}, abort, nil, 0)
	if !res.IsError {
		t.Fatal("expected cancellation to surface as error result")
	}
}

func TestClassifyRespectsNonRetryableErrors(t *testing.T) {
	r := Registry{}
	fatal := &tunaerr.ToolExecutionError{ToolName: "x", Err: context.DeadlineExceeded}
	res := r.classify("t1", "x", Tool{}, fatal, 0)
	if !res.IsError {
		t.Fatal("expected fatal classification to remain an error result")
	}
}
