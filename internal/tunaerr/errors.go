// Package tunaerr implements the error taxonomy of spec §7: a closed set of
// typed errors, each wrapping an underlying cause and carrying the metadata
// the orchestrator needs to decide whether to recover locally or propagate.
// One struct per kind, each with Error() and Unwrap(), plus free functions
// to classify/wrap instead of scattering string-matching across callers.
package tunaerr

import (
	"errors"
	"fmt"
)

// ToolRetryError: the model should try again with corrected arguments.
// Surfaced to the model as a tool_result with is_error=true; does not end
// the run. Counts against a tool call's retry budget (§4.1).
type ToolRetryError struct {
	ToolName string
	Err      error
}

func (e *ToolRetryError) Error() string {
	return fmt.Sprintf("tool %s: retryable: %v", e.ToolName, e.Err)
}
func (e *ToolRetryError) Unwrap() error { return e.Err }

// ToolExecutionError: hard failure for this tool call. Ends the turn for
// that call; surfaced to the user via notice.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: execution failed: %v", e.ToolName, e.Err)
}
func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ToolCancelled: the tool call was cancelled via abort signal. Treated as a
// hard failure for the affected call; never retried.
type ToolCancelled struct {
	ToolName   string
	ToolCallID string
}

func (e *ToolCancelled) Error() string {
	return fmt.Sprintf("tool %s (call %s): cancelled", e.ToolName, e.ToolCallID)
}

// FileOperationError: a filesystem error surfaced by a tool adapter. Always
// a ToolExecutionError variant — never retried.
type FileOperationError struct {
	Path string
	Err  error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("file operation on %s failed: %v", e.Path, e.Err)
}
func (e *FileOperationError) Unwrap() error { return e.Err }

// AgentError: a provider-reported model error that is not a context
// overflow. Fatal; surfaces out of process_request.
type AgentError struct {
	Provider string
	Err      error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error from %s: %v", e.Provider, e.Err)
}
func (e *AgentError) Unwrap() error { return e.Err }

// ContextOverflowError: the provider rejected a request because it exceeded
// the model's context window. Recoverable exactly once: triggers a forced
// compaction and a single retry (§4.3 step 7, §8 invariant 9).
type ContextOverflowError struct {
	Err error
}

func (e *ContextOverflowError) Error() string { return fmt.Sprintf("context overflow: %v", e.Err) }
func (e *ContextOverflowError) Unwrap() error { return e.Err }

// GlobalRequestTimeoutError: the wall-clock bound over an entire request
// fired. Fatal, raised only after abort cleanup has completed.
type GlobalRequestTimeoutError struct {
	Seconds float64
}

func (e *GlobalRequestTimeoutError) Error() string {
	return fmt.Sprintf("global request timeout after %.1fs", e.Seconds)
}

// UserAbort: the abort signal was set by the user. Not an error in the
// conventional sense — process_request returns a clean cancelled status —
// but modeled as an error type so internal plumbing (errors.As) can treat it
// uniformly until the orchestrator translates it to a terminal status.
type UserAbort struct{}

func (e *UserAbort) Error() string { return "aborted by user" }

// FatalCompactionError: the single overflow-recovery retry still overflowed,
// or a recovery compaction produced no change. Fatal to the caller.
type FatalCompactionError struct {
	Reason string
}

func (e *FatalCompactionError) Error() string { return fmt.Sprintf("fatal compaction: %s", e.Reason) }

// SessionCorruptionError: persisted session state failed to load (non-dict
// message, schema violation). Load fails loud; the corrupt file is not
// overwritten.
type SessionCorruptionError struct {
	SessionID string
	Err       error
}

func (e *SessionCorruptionError) Error() string {
	return fmt.Sprintf("session %s corrupted: %v", e.SessionID, e.Err)
}
func (e *SessionCorruptionError) Unwrap() error { return e.Err }

// Retryable reports whether err is a kind the tool retry budget (§4.1)
// should count against and retry, as opposed to a fatal kind.
func Retryable(err error) bool {
	var retry *ToolRetryError
	return errors.As(err, &retry)
}

// IsOverflow reports whether err represents a context-window overflow,
// recognized via a provider-agnostic classifier (§4.3 step 7). Concrete
// StreamFn implementations (internal/providers) are responsible for
// recognizing provider-specific overflow signals and wrapping them as
// *ContextOverflowError before they reach the orchestrator.
func IsOverflow(err error) bool {
	var overflow *ContextOverflowError
	return errors.As(err, &overflow)
}

// IsUserAbort reports whether err represents a clean user-initiated abort.
func IsUserAbort(err error) bool {
	var abort *UserAbort
	return errors.As(err, &abort)
}

// WithRequestContext wraps an unrecognized error with request metadata
// (request id, model, iteration) per §7's propagation policy: unknown
// errors are never silently swallowed, only annotated and propagated.
type RequestContextError struct {
	Err       error
	RequestID string
	Model     string
	Iteration int
}

func (e *RequestContextError) Error() string {
	return fmt.Sprintf("[request=%s model=%s iteration=%d] %v", e.RequestID, e.Model, e.Iteration, e.Err)
}
func (e *RequestContextError) Unwrap() error { return e.Err }

func WithRequestContext(err error, requestID, model string, iteration int) error {
	if err == nil {
		return nil
	}
	return &RequestContextError{Err: err, RequestID: requestID, Model: model, Iteration: iteration}
}
