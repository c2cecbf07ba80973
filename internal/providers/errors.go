package providers

import (
	"strings"

	"github.com/tunacode-sh/tunacode/internal/tunaerr"
)

// wrapProviderError classifies a raw SDK error into the §7 taxonomy,
// narrowed to the two outcomes a StreamFn is responsible for distinguishing:
// a context-window overflow (recoverable once, via forced compaction)
// versus every other provider failure (fatal AgentError).
func wrapProviderError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if httpStatus == 413 || strings.Contains(msg, "context_length_exceeded") ||
		strings.Contains(msg, "context length") || strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "too many tokens") {
		return &tunaerr.ContextOverflowError{Err: err}
	}
	return &tunaerr.AgentError{Provider: "llm", Err: err}
}
