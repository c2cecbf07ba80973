package tool

import (
	"context"

	"github.com/tunacode-sh/tunacode/internal/engine"
	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

// FromEngineTool adapts one of the concrete built-in tools in
// internal/tools/{filesystem,search,execution,editing,reasoning} — which
// still return the teacher's engine.Tool shape (name/description/schema/Fn)
// — onto the new C3 contract. The concrete tool bodies are kept verbatim
// (they are collaborators per spec §1, "individual tool implementations");
// only the execution boundary is adapted here.
func FromEngineTool(t engine.Tool) Tool {
	return Tool{
		Name:        t.Name,
		Description: t.Description,
		SchemaJSON:  t.SchemaJSON,
		Retryable:   t.Retryable,
		Metadata: Metadata{
			Version:         t.Metadata.Version,
			Category:        t.Metadata.Category,
			Tags:            t.Metadata.Tags,
			Deprecated:      t.Metadata.Deprecated,
			ReplacedBy:      t.Metadata.ReplacedBy,
			MinAgentVersion: t.Metadata.MinAgentVersion,
		},
		Execute: func(ctx context.Context, toolCallID string, args map[string]any, abort AbortSignal, onUpdate OnUpdate) AgentToolResult {
			content, err := t.Fn(ctx, args)
			if err != nil {
				if t.Retryable {
					return AgentToolResult{ToolCallID: toolCallID, Content: (&tunaerr.ToolRetryError{ToolName: t.Name, Err: err}).Error(), IsError: true}
				}
				return AgentToolResult{ToolCallID: toolCallID, Content: (&tunaerr.ToolExecutionError{ToolName: t.Name, Err: err}).Error(), IsError: true}
			}
			return AgentToolResult{ToolCallID: toolCallID, Content: content}
		},
	}
}

// FromEngineRegistry adapts a whole engine.ToolRegistry (as built by
// internal/tools.NewToolRegistry) into the new Registry type.
func FromEngineRegistry(r engine.ToolRegistry) Registry {
	out := make(Registry, len(r))
	for name, t := range r {
		out[name] = FromEngineTool(t)
	}
	return out
}
