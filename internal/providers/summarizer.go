package providers

import (
	"context"
	"fmt"

	"github.com/tunacode-sh/tunacode/internal/compaction"
	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"
)

// NewLLMSummarizer adapts any streamfn.StreamFn into a compaction.SummaryGenerator
// by issuing a single non-tool turn asking the model to compress the transcript.
//
// GROUNDED on the teacher's engine/summarizer.go (same one-shot "summarize
// this transcript" prompt shape), retargeted onto streamfn.StreamFn so the
// Compaction Controller (internal/compaction) stays provider-agnostic.
func NewLLMSummarizer(fn streamfn.StreamFn, model string) compaction.SummaryGenerator {
	return func(ctx context.Context, transcript string, prevSummary string) (string, error) {
		prompt := "Summarize the conversation below so it can replace the original messages " +
			"while preserving every decision, file path, and open question. " +
			"Be concise but do not drop concrete details.\n\n"
		if prevSummary != "" {
			prompt += "Previous summary:\n" + prevSummary + "\n\n"
		}
		prompt += "Transcript:\n" + transcript

		history := []message.Message{
			{Role: message.RoleUser, Parts: []message.Part{message.NewText(prompt)}},
		}

		events, errs := fn.Stream(ctx, history, tool.Registry{}, streamfn.Options{Model: model, MaxOutputTokens: 1024})

		var summary string
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					break
				}
				if ev.Kind == streamfn.EventTextDelta {
					summary += ev.Delta
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					break
				}
				if err != nil {
					return "", fmt.Errorf("summarizer: %w", err)
				}
			}
			if events == nil && errs == nil {
				break
			}
		}
		if summary == "" {
			return "", fmt.Errorf("summarizer: model returned no text")
		}
		return summary, nil
	}
}
