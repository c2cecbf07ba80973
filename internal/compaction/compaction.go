// Package compaction implements the Compaction Controller (C5): a pure
// policy+summarizer layer. It never writes to session state directly — the
// orchestrator applies the returned Outcome via a single shared writer path
// (spec §4.5's "the controller is pure"): threshold check, retention
// boundary, summarize, then apply.
package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tunacode-sh/tunacode/internal/message"
)

// Status is the closed set of outcomes (§4.5).
type Status string

const (
	StatusCompacted Status = "compacted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Reason codes used in Outcome.Reason.
const (
	ReasonNothingToCompact = "nothing_to_compact"
	ReasonSummarizerFailed = "summarizer_failed"
	ReasonCapabilityMissing = "capability_missing"
	ReasonBelowThreshold    = "below_threshold"
)

// Config is the threshold configuration of §4.5/§6.3.
type Config struct {
	MaxTokens        int
	ReserveTokens    int
	KeepRecentTokens int
	Enabled          bool
}

// Outcome is the controller's pure return value (§4.5).
type Outcome struct {
	Status               Status
	Reason               string
	Detail               string
	Messages             []message.Message
	TokensBefore         int
	TokensAfter          int
	OriginalMessageCount int
	RetainedMessageCount int
	SummaryText          string
}

// SummaryGenerator is the pluggable summarizer (§6.1): async
// (transcript, prev_summary?) -> string, backed by a StreamFn with a
// dedicated prompt and a fresh context in real implementations.
type SummaryGenerator func(ctx context.Context, transcript string, prevSummary string) (string, error)

// maxTranscriptChars bounds the summarizer's input per §9's open question
// ("whether compaction may itself overflow on very large histories"): the
// implementer-chosen cap, truncating the oldest content first.
const maxTranscriptChars = 60_000

// perEntryToolResultCap truncates individual tool results in the transcript
// rendering (§4.5 "tool results truncated to a per-entry cap").
const perEntryToolResultCap = 2000

// ShouldCompact implements the pre-request trigger policy (§4.5): inclusive
// threshold, tokens(messages) >= max_tokens - reserve_tokens - keep_recent_tokens.
func ShouldCompact(cfg Config, msgs []message.Message) bool {
	if !cfg.Enabled {
		return false
	}
	threshold := cfg.MaxTokens - cfg.ReserveTokens - cfg.KeepRecentTokens
	return EstimateTotal(msgs) >= threshold
}

// RetentionBoundary implements §4.5's retention-boundary algorithm: walk
// from the end accumulating token estimates until keep_recent_tokens is
// covered, then shift the boundary outward until no tool_call/tool_result
// pair straddles it. Returns the index into msgs where the retained suffix
// begins; returns 0 when msgs is empty or the retained suffix covers the
// whole history, which Run treats as nothing to compact.
func RetentionBoundary(msgs []message.Message, keepRecentTokens int) int {
	if len(msgs) == 0 {
		return 0
	}

	accumulated := 0
	boundary := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		accumulated += EstimateMessageTokens(msgs[i])
		boundary = i
		if accumulated >= keepRecentTokens {
			break
		}
	}

	return safeBoundary(msgs, boundary)
}

// safeBoundary shifts boundary toward older messages (decreasing the index)
// until every tool_call in msgs[boundary:] has a matching tool_result also
// within msgs[boundary:], and vice versa (§4.5 step 3, §8 invariant 6).
func safeBoundary(msgs []message.Message, boundary int) int {
	for {
		pending := map[string]bool{}
		orphanResult := false
		for i := boundary; i < len(msgs); i++ {
			for _, id := range msgs[i].ToolCallIDs() {
				pending[id] = true
			}
			for _, id := range msgs[i].ToolResultIDs() {
				if !pending[id] {
					orphanResult = true
				}
				delete(pending, id)
			}
		}
		if len(pending) == 0 && !orphanResult {
			return boundary
		}
		if boundary == 0 {
			// Entire history has an orphaned tool_call that started before
			// index 0 could ever exist; nothing further to shift. This
			// cannot occur for a well-formed history (invariant 1) but we
			// fail safe rather than loop forever.
			return 0
		}
		boundary--
	}
}

// Run executes the full pure pipeline: policy decision already made by the
// caller (ShouldCompact, or forced manual/overflow-recovery paths) — Run
// itself always attempts to compact once invoked, and reports skip/fail
// outcomes rather than silently no-op-ing.
func Run(ctx context.Context, cfg Config, msgs []message.Message, prevSummary string, gen SummaryGenerator) Outcome {
	tokensBefore := EstimateTotal(msgs)

	if len(msgs) == 0 {
		return Outcome{Status: StatusSkipped, Reason: ReasonNothingToCompact, Messages: msgs, TokensBefore: tokensBefore, TokensAfter: tokensBefore}
	}

	boundary := RetentionBoundary(msgs, cfg.KeepRecentTokens)
	if boundary == 0 {
		return Outcome{
			Status: StatusSkipped, Reason: ReasonNothingToCompact,
			Detail:   "retention window already covers the entire history",
			Messages: msgs, TokensBefore: tokensBefore, TokensAfter: tokensBefore,
			OriginalMessageCount: len(msgs), RetainedMessageCount: len(msgs),
		}
	}

	if gen == nil {
		return Outcome{
			Status: StatusSkipped, Reason: ReasonCapabilityMissing,
			Detail:   "no summary generator configured",
			Messages: msgs, TokensBefore: tokensBefore, TokensAfter: tokensBefore,
			OriginalMessageCount: len(msgs), RetainedMessageCount: len(msgs),
		}
	}

	transcript := renderTranscript(msgs[:boundary])
	summary, err := gen(ctx, transcript, prevSummary)
	if err != nil {
		return Outcome{
			Status: StatusSkipped, Reason: ReasonSummarizerFailed,
			Detail:   err.Error(),
			Messages: msgs, TokensBefore: tokensBefore, TokensAfter: tokensBefore,
			OriginalMessageCount: len(msgs), RetainedMessageCount: len(msgs),
		}
	}

	summaryMsg := message.Message{
		Role:  message.RoleSystem,
		Parts: []message.Part{message.NewText(fmt.Sprintf("[conversation summary]\n%s", summary))},
	}
	retained := append([]message.Message{summaryMsg}, msgs[boundary:]...)
	tokensAfter := EstimateTotal(retained)

	return Outcome{
		Status: StatusCompacted, Reason: "", Messages: retained,
		TokensBefore: tokensBefore, TokensAfter: tokensAfter,
		OriginalMessageCount: len(msgs), RetainedMessageCount: len(retained),
		SummaryText: summary,
	}
}

// RunOverflowRecovery forces a compaction after a provider context-overflow
// error. A recovery compaction that produces no reduction in token count is
// a fatal condition (§4.5 "Overflow recovery").
func RunOverflowRecovery(ctx context.Context, cfg Config, msgs []message.Message, prevSummary string, gen SummaryGenerator) Outcome {
	out := Run(ctx, cfg, msgs, prevSummary, gen)
	if out.Status == StatusCompacted && out.TokensAfter >= out.TokensBefore {
		out.Status = StatusFailed
		out.Reason = "overflow_recovery_no_reduction"
	}
	return out
}

func renderTranscript(msgs []message.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		for _, p := range m.Parts {
			switch p.Kind {
			case message.PartText:
				fmt.Fprintf(&b, "%s: %s\n", m.Role, p.Text)
			case message.PartThinking:
				fmt.Fprintf(&b, "%s (thinking): %s\n", m.Role, p.Text)
			case message.PartToolCall:
				fmt.Fprintf(&b, "%s: tool_call %s(%s)\n", m.Role, p.ToolName, p.ToolCallID)
			case message.PartToolResult:
				fmt.Fprintf(&b, "tool_result %s: %s\n", p.ToolCallID, truncate(p.ToolResultContent, perEntryToolResultCap))
			}
		}
	}
	out := b.String()
	if len(out) > maxTranscriptChars {
		out = out[len(out)-maxTranscriptChars:]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// NowUTC is a seam for CompactionRecord timestamps; kept as a function
// rather than a direct time.Now() call at call sites purely for
// readability, not for mockability (the orchestrator owns the clock).
func NowUTC() time.Time { return time.Now().UTC() }
