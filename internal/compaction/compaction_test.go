package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tunacode-sh/tunacode/internal/message"
)

func textMsg(role message.Role, s string) message.Message {
	return message.Message{Role: role, Parts: []message.Part{message.NewText(s)}}
}

func TestShouldCompactInclusiveThreshold(t *testing.T) {
	cfg := Config{MaxTokens: 100, ReserveTokens: 10, KeepRecentTokens: 10, Enabled: true}
	msgs := []message.Message{textMsg(message.RoleUser, strings.Repeat("a", 320))} // 80 tokens
	if !ShouldCompact(cfg, msgs) {
		t.Fatal("expected compaction to trigger exactly at threshold (inclusive)")
	}
}

func TestShouldCompactDisabled(t *testing.T) {
	cfg := Config{MaxTokens: 100, ReserveTokens: 10, KeepRecentTokens: 10, Enabled: false}
	msgs := []message.Message{textMsg(message.RoleUser, strings.Repeat("a", 1000))}
	if ShouldCompact(cfg, msgs) {
		t.Fatal("disabled config must never trigger compaction")
	}
}

func TestRetentionBoundaryNeverOrphansToolPair(t *testing.T) {
	msgs := []message.Message{
		textMsg(message.RoleUser, "old context"),
		{Role: message.RoleAssistant, Parts: []message.Part{message.NewToolCall("t1", "read_file", nil)}},
		{Role: message.RoleToolResult, Parts: []message.Part{message.NewToolResult("t1", "contents", false)}},
		textMsg(message.RoleAssistant, "done"),
	}
	// keep_recent_tokens small enough that a naive walk would land between
	// the tool_call and tool_result messages.
	boundary := RetentionBoundary(msgs, 1)
	for i := boundary; i < len(msgs); i++ {
		for _, id := range msgs[i].ToolCallIDs() {
			found := false
			for j := boundary; j < len(msgs); j++ {
				for _, rid := range msgs[j].ToolResultIDs() {
					if rid == id {
						found = true
					}
				}
			}
			if !found {
				t.Fatalf("tool_call %s orphaned at boundary %d", id, boundary)
			}
		}
	}
}

func TestRunSkipsWhenNothingToCompact(t *testing.T) {
	cfg := Config{KeepRecentTokens: 1_000_000}
	msgs := []message.Message{textMsg(message.RoleUser, "hi")}
	out := Run(context.Background(), cfg, msgs, "", func(ctx context.Context, transcript, prev string) (string, error) {
		t.Fatal("summarizer should not be called when nothing to compact")
		return "", nil
	})
	if out.Status != StatusSkipped || out.Reason != ReasonNothingToCompact {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRunAppliesSummaryAndPreservesSuffix(t *testing.T) {
	cfg := Config{KeepRecentTokens: 1}
	old := textMsg(message.RoleUser, strings.Repeat("x", 400))
	recent := textMsg(message.RoleAssistant, "recent reply")
	msgs := []message.Message{old, recent}

	out := Run(context.Background(), cfg, msgs, "", func(ctx context.Context, transcript, prev string) (string, error) {
		return "summary of old stuff", nil
	})
	if out.Status != StatusCompacted {
		t.Fatalf("expected compacted, got %+v", out)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("expected summary + retained suffix, got %d messages", len(out.Messages))
	}
	if out.Messages[0].Role != message.RoleSystem {
		t.Fatalf("expected synthetic summary message to be system role, got %s", out.Messages[0].Role)
	}
	if out.Messages[1].Text() != recent.Text() {
		t.Fatalf("retained suffix was mutated: got %q want %q", out.Messages[1].Text(), recent.Text())
	}
}

func TestRunSkipsOnSummarizerFailure(t *testing.T) {
	cfg := Config{KeepRecentTokens: 1}
	msgs := []message.Message{textMsg(message.RoleUser, strings.Repeat("x", 400)), textMsg(message.RoleAssistant, "r")}
	out := Run(context.Background(), cfg, msgs, "", func(ctx context.Context, transcript, prev string) (string, error) {
		return "", errors.New("provider unavailable")
	})
	if out.Status != StatusSkipped || out.Reason != ReasonSummarizerFailed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(out.Messages) != len(msgs) {
		t.Fatalf("expected original messages preserved on failure, got %d", len(out.Messages))
	}
}

func TestRunOverflowRecoveryFatalOnNoReduction(t *testing.T) {
	cfg := Config{KeepRecentTokens: 1}
	msgs := []message.Message{textMsg(message.RoleUser, strings.Repeat("x", 40)), textMsg(message.RoleAssistant, "r")}
	out := RunOverflowRecovery(context.Background(), cfg, msgs, "", func(ctx context.Context, transcript, prev string) (string, error) {
		return strings.Repeat("y", 4000), nil // summary bigger than what it replaced
	})
	if out.Status != StatusFailed {
		t.Fatalf("expected failed outcome when recovery compaction doesn't reduce size, got %+v", out)
	}
}
