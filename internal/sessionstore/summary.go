package sessionstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/tunacode-sh/tunacode/internal/message"
	"github.com/tunacode-sh/tunacode/internal/streamfn"
	"github.com/tunacode-sh/tunacode/internal/tool"
)

// TitleGenerator produces a short, human-readable session title from the
// opening turns of a conversation. Distinct from compaction.SummaryGenerator:
// that one compresses a conversation's *middle* to keep it inside the
// context window; this one names the session for the session list, once,
// from whatever the user opened with.
type TitleGenerator func(ctx context.Context, history []message.Message) (string, error)

// NewLLMTitleGenerator adapts fn into a TitleGenerator by issuing a single
// non-tool turn asking the model for a 3-5 word title.
//
// GROUNDED on the teacher's session/summarizer.go Summarizer.GenerateTitle
// (same "first few messages, 3-5 words, no punctuation" prompt shape),
// retargeted from the teacher's engine.LLMClient onto streamfn.StreamFn, the
// same provider-agnostic seam providers.NewLLMSummarizer uses for the
// Compaction Controller's summaries.
func NewLLMTitleGenerator(fn streamfn.StreamFn, model string) TitleGenerator {
	return func(ctx context.Context, history []message.Message) (string, error) {
		if len(history) == 0 {
			return "New Session", nil
		}

		limit := 10
		if len(history) < limit {
			limit = len(history)
		}

		prompt := "Generate a short, concise title (3-5 words) for this session based on " +
			"the user's intent and work done. Do not use quotes or punctuation.\n\n" +
			"History:\n" + renderForTitle(history[:limit]) + "\n\nGenerate Title:"

		req := []message.Message{
			{Role: message.RoleUser, Parts: []message.Part{message.NewText(prompt)}},
		}

		events, errs := fn.Stream(ctx, req, tool.Registry{}, streamfn.Options{Model: model, MaxOutputTokens: 20})

		var title strings.Builder
		for events != nil || errs != nil {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Kind == streamfn.EventTextDelta {
					title.WriteString(ev.Delta)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					return "", fmt.Errorf("sessionstore: generate title: %w", err)
				}
			}
		}

		trimmed := strings.Trim(strings.TrimSpace(title.String()), `"'`)
		if trimmed == "" {
			return "New Session", nil
		}
		return trimmed, nil
	}
}

func renderForTitle(msgs []message.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text())
	}
	return b.String()
}
