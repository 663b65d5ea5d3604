package llm

import "testing"

func TestMergeEarliestKeepsInput(t *testing.T) {
	var u Usage
	// message_start style update: input-side only.
	u.MergeEarliest(Usage{Input: 120, CacheRead: 400, CacheWrite: 32})
	// message_delta style update: output only; must not clobber input.
	u.MergeEarliest(Usage{Output: 55})
	u.MergeEarliest(Usage{Output: 90})

	if u.Input != 120 || u.CacheRead != 400 || u.CacheWrite != 32 {
		t.Errorf("input-side counters lost: %+v", u)
	}
	if u.Output != 90 {
		t.Errorf("output not updated: %+v", u)
	}

	// A later update carrying a different input must not overwrite the
	// earliest observation.
	u.MergeEarliest(Usage{Input: 7})
	if u.Input != 120 {
		t.Errorf("earliest input overwritten: %+v", u)
	}
}

func TestFinalizeTotalsAndCost(t *testing.T) {
	m := &Model{Cost: ModelCost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75}}
	u := Usage{Input: 1_000_000, Output: 2_000_000, CacheRead: 500_000, CacheWrite: 100_000}
	u.Finalize(m)

	if u.TotalTokens != 3_600_000 {
		t.Errorf("TotalTokens = %d", u.TotalTokens)
	}
	if u.Cost.Input != 3 || u.Cost.Output != 30 || u.Cost.CacheRead != 0.15 || u.Cost.CacheWrite != 0.375 {
		t.Errorf("cost breakdown wrong: %+v", u.Cost)
	}
	if u.Cost.Total != 33.525 {
		t.Errorf("cost total = %v", u.Cost.Total)
	}

	// Provider-reported totals are preserved.
	r := Usage{Input: 10, Output: 5, TotalTokens: 99}
	r.Finalize(m)
	if r.TotalTokens != 99 {
		t.Errorf("reported total overwritten: %d", r.TotalTokens)
	}
}

func TestGetModelPrefixFallback(t *testing.T) {
	if m := GetModel(APIAnthropicMessages, "claude-sonnet-4-5"); m == nil || m.ContextWindow != 200000 {
		t.Fatalf("exact lookup failed: %+v", m)
	}
	m := GetModel(APIAnthropicMessages, "claude-sonnet-4-5-20250929")
	if m == nil {
		t.Fatal("prefix lookup failed")
	}
	if m.ID != "claude-sonnet-4-5-20250929" {
		t.Errorf("requested ID not preserved: %q", m.ID)
	}
	if GetModel(APIAnthropicMessages, "no-such-model") != nil {
		t.Error("unknown model should return nil")
	}
	if GetModel(APIKimi, "kimi-k2-thinking") == nil {
		t.Error("kimi catalog entry missing")
	}
}
