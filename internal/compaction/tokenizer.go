package compaction

import "github.com/tunacode-sh/tunacode/internal/message"

// EstimateTokens is the heuristic token estimator spec §4.5 mandates
// (chars / 4).
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}

// EstimateMessageTokens estimates the token cost of one message by summing
// its text-bearing parts, including tool args/results so the retention walk
// doesn't systematically undercount tool-heavy turns.
func EstimateMessageTokens(m message.Message) int {
	total := 0
	for _, p := range m.Parts {
		switch p.Kind {
		case message.PartText, message.PartThinking:
			total += EstimateTokens(p.Text)
		case message.PartToolCall:
			total += EstimateTokens(p.ToolName) + len(p.Args)*4
		case message.PartToolResult:
			total += EstimateTokens(p.ToolResultContent)
		}
	}
	return total
}

// EstimateTotal sums EstimateMessageTokens over a history slice.
func EstimateTotal(msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}
