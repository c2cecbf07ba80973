package message

import "testing"

func fullUsageDict() map[string]any {
	return map[string]any{
		"input_tokens":       5,
		"output_tokens":      1,
		"cache_read_tokens":  0,
		"cache_write_tokens": 0,
		"total_tokens":       6,
		"cost": map[string]any{
			"input":  0.0,
			"output": 0.0,
			"total":  0.0,
		},
	}
}

func TestParseUsageOK(t *testing.T) {
	u, err := ParseUsage(fullUsageDict())
	if err != nil {
		t.Fatalf("ParseUsage: %v", err)
	}
	if u.TotalTokens != 6 {
		t.Fatalf("got total_tokens=%d want 6", u.TotalTokens)
	}
}

func TestParseUsageMissingCostTotalFails(t *testing.T) {
	raw := fullUsageDict()
	cost := raw["cost"].(map[string]any)
	delete(cost, "total")
	_, err := ParseUsage(raw)
	if err == nil {
		t.Fatal("expected fail-loud error for missing cost.total, got nil")
	}
}

func TestParseUsageMissingTopLevelKeyFails(t *testing.T) {
	raw := fullUsageDict()
	delete(raw, "cache_read_tokens")
	_, err := ParseUsage(raw)
	if err == nil {
		t.Fatal("expected fail-loud error for missing cache_read_tokens, got nil")
	}
}

func TestUsageAddIsFieldwise(t *testing.T) {
	a := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3, Cost: Cost{Input: 0.1, Output: 0.2, Total: 0.3}}
	b := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, Cost: Cost{Input: 1, Output: 2, Total: 3}}
	sum := a.Add(b)
	if sum.InputTokens != 11 || sum.OutputTokens != 22 || sum.TotalTokens != 33 {
		t.Fatalf("unexpected sum: %+v", sum)
	}
	if sum.Cost.Total != 3.3 {
		t.Fatalf("unexpected cost total: %v", sum.Cost.Total)
	}
}
