// Package tool implements the Tool Execution Contract (C3): a uniform tool
// adapter with typed error semantics, abort-signal propagation, and
// schema-validated argument binding — the public contract of spec §4.1:
// execute(tool_call_id, args, abort_signal, on_update).
package tool

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

// AbortSignal is the single per-request cancellation signal (§5), threaded
// into every tool execution. Tools MUST check it before long operations.
type AbortSignal interface {
	// Context returns a context.Context that is cancelled when the signal
	// fires, suitable for use with anything that accepts a context.
	Context() context.Context
	// Aborted reports whether the signal has already fired.
	Aborted() bool
}

type ctxAbortSignal struct{ ctx context.Context }

func (s ctxAbortSignal) Context() context.Context { return s.ctx }
func (s ctxAbortSignal) Aborted() bool             { return s.ctx.Err() != nil }

// NewAbortSignal wraps a context.Context as an AbortSignal.
func NewAbortSignal(ctx context.Context) AbortSignal { return ctxAbortSignal{ctx: ctx} }

// AgentToolResult is the return value of execute (§4.1).
type AgentToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// OnUpdate streams a partial result while a tool is still running.
type OnUpdate func(partial string)

// Metadata mirrors engine/tools.go's ToolMetadata: versioning and
// categorization, orthogonal to the execution contract itself.
type Metadata struct {
	Version         string
	Category        string
	Tags            []string
	Deprecated      bool
	ReplacedBy      string
	MinAgentVersion string
}

// Tool is a named async operation: a declared name, a JSON-schema-shaped
// input schema, a description, and an execute function bound to the C3
// contract.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Retryable   bool
	MaxRetries  int // 0 means "use the registry default" (3, per §4.1)
	Metadata    Metadata

	Execute func(ctx context.Context, toolCallID string, args map[string]any, abort AbortSignal, onUpdate OnUpdate) AgentToolResult
}

// ValidateArgs binds args against the tool's declared schema. Binding
// failure is a ToolRetryError per §4.1: the model should retry with
// corrected arguments.
func (t Tool) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &tunaerr.ToolRetryError{ToolName: t.Name, Err: fmt.Errorf("schema validation failed: %w", err)}
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &tunaerr.ToolRetryError{ToolName: t.Name, Err: fmt.Errorf("invalid arguments: %v", msgs)}
	}
	return nil
}

func (t Tool) retryBudget() int {
	if t.MaxRetries > 0 {
		return t.MaxRetries
	}
	return 3
}

// Schema is a flattened projection used to build the provider-facing tool
// list (mirrors engine's ToolSchema).
type Schema struct {
	Name        string
	Description string
	JSONSchema  string
	Retryable   bool
}
