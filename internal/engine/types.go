package engine

import "fmt"

// Package engine now holds only the teacher's internal bookkeeping types
// that the concrete built-in tools (internal/tools/...) still reach into
// via context or *State: Tool/ToolRegistry/ToolMetadata (tools.go),
// ToolSet (toolset.go), State/Phase (state.go), MiniPlan (miniplan.go) and
// the execution-tool wire contract below. The ReAct loop, hooks, retry
// policy and LLM client abstraction that used to live here were replaced
// by internal/orchestrator, internal/streamfn, internal/compaction and
// internal/tunaerr; see DESIGN.md.

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the internal bookkeeping message kept on State.History for
// phase detection (phase.go) and the mini-plan. The canonical message model
// used everywhere else is message.Message.
type ChatMessage struct {
	Role      MessageRole
	Content   string
	Name      string
	ToolCalls []ToolCall
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.Name == "" {
		return fmt.Errorf("tool messages must have a Name field")
	}
	return nil
}

// ToolCall represents a function/tool the assistant requested, as recorded
// into State.History for phase detection purposes.
type ToolCall struct {
	ID    string
	Name  string
	Args  map[string]any
	Error string
}

// ToolSchema is the JSON schema the provider/registry surface to the model.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
	Retryable   bool
}

// BudgetConfig defines token budget limits carried on State. The soft-cap
// checks in soft_caps.go do not read it.
type BudgetConfig struct {
	SoftLimit            int
	HardLimit            int
	MaxCompressionPasses int
	ReserveTokens        int
}

// DefaultBudgetConfig returns sensible default budget configuration.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		SoftLimit:            12000,
		HardLimit:            16000,
		MaxCompressionPasses: 5,
		ReserveTokens:        2000,
	}
}

// ExecutionResult is the standard wire format for execution tool results
// (run_cmd, run_tests, run_build): those tools marshal this to JSON as their
// Tool.Fn return value. The orchestrator does not parse it; the JSON text is
// passed on unchanged as the tool result content.
type ExecutionResult struct {
	Cmd             string `json:"cmd"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	Status          string `json:"status,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Passed          *bool  `json:"passed,omitempty"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
}
