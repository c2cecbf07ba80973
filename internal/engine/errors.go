package engine

import (
	"fmt"
	"strings"
)

// ToolValidationError indicates that tool arguments failed JSON schema
// validation (Tool.ValidateArgs in tools.go). The LLM-retry/backoff
// classification this package used to own now lives in internal/tunaerr.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}
