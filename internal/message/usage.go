package message

import "fmt"

// Cost is the monetary breakdown of a Usage payload, in the provider's
// native currency unit (USD fractions for every provider wired in
// internal/providers).
type Cost struct {
	Input  float64
	Output float64
	Total  float64
}

// Usage is the canonical, provider-agnostic usage shape (§3). All seven
// fields are required wherever Usage crosses the dict boundary; there is no
// zero-value default that means "absent" — ParseUsage rejects missing keys
// instead of silently filling zeros.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	TotalTokens      int
	Cost             Cost
}

// Add returns the field-wise sum of u and o, used to accumulate
// session_total_usage (§8 invariant 4).
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		Cost: Cost{
			Input:  u.Cost.Input + o.Cost.Input,
			Output: u.Cost.Output + o.Cost.Output,
			Total:  u.Cost.Total + o.Cost.Total,
		},
	}
}

// ParseUsage validates and converts a raw provider payload (already decoded
// into a generic map, e.g. from JSON) into a Usage. It fails loudly: any of
// the seven required keys being absent is an error, never a silent zero.
func ParseUsage(raw map[string]any) (Usage, error) {
	req := []string{"input_tokens", "output_tokens", "cache_read_tokens", "cache_write_tokens", "total_tokens", "cost"}
	for _, k := range req {
		if _, ok := raw[k]; !ok {
			return Usage{}, fmt.Errorf("usage: missing required key %q", k)
		}
	}
	costRaw, ok := raw["cost"].(map[string]any)
	if !ok {
		return Usage{}, fmt.Errorf("usage: %q field must be an object", "cost")
	}
	for _, k := range []string{"input", "output", "total"} {
		if _, ok := costRaw[k]; !ok {
			return Usage{}, fmt.Errorf("usage: cost missing required key %q", k)
		}
	}

	intField := func(key string) (int, error) {
		v, ok := raw[key]
		if !ok {
			return 0, fmt.Errorf("usage: missing required key %q", key)
		}
		f, ok := toFloat(v)
		if !ok {
			return 0, fmt.Errorf("usage: key %q is not numeric: %v", key, v)
		}
		return int(f), nil
	}
	floatField := func(m map[string]any, key string) (float64, error) {
		v, ok := m[key]
		if !ok {
			return 0, fmt.Errorf("usage: cost missing required key %q", key)
		}
		f, ok := toFloat(v)
		if !ok {
			return 0, fmt.Errorf("usage: cost.%s is not numeric: %v", key, v)
		}
		return f, nil
	}

	var u Usage
	var err error
	if u.InputTokens, err = intField("input_tokens"); err != nil {
		return Usage{}, err
	}
	if u.OutputTokens, err = intField("output_tokens"); err != nil {
		return Usage{}, err
	}
	if u.CacheReadTokens, err = intField("cache_read_tokens"); err != nil {
		return Usage{}, err
	}
	if u.CacheWriteTokens, err = intField("cache_write_tokens"); err != nil {
		return Usage{}, err
	}
	if u.TotalTokens, err = intField("total_tokens"); err != nil {
		return Usage{}, err
	}
	if u.Cost.Input, err = floatField(costRaw, "input"); err != nil {
		return Usage{}, err
	}
	if u.Cost.Output, err = floatField(costRaw, "output"); err != nil {
		return Usage{}, err
	}
	if u.Cost.Total, err = floatField(costRaw, "total"); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToDict renders u into the canonical dict shape, the inverse of ParseUsage.
func (u Usage) ToDict() map[string]any {
	return map[string]any{
		"input_tokens":       u.InputTokens,
		"output_tokens":      u.OutputTokens,
		"cache_read_tokens":  u.CacheReadTokens,
		"cache_write_tokens": u.CacheWriteTokens,
		"total_tokens":       u.TotalTokens,
		"cost": map[string]any{
			"input":  u.Cost.Input,
			"output": u.Cost.Output,
			"total":  u.Cost.Total,
		},
	}
}
