package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(cfg Config) (*Store, *clock) {
	c := &clock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	return NewStore(cfg, WithClock(c.now)), c
}

func strong() map[string]any {
	return map[string]any{"confidence": 0.8, "score": 0.5}
}

func forced(importance float64) map[string]any {
	return map[string]any{"force_keep": true, "memory_type": "ltm", "importance": importance}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name     string
		stage    string
		content  string
		meta     map[string]any
		keep     bool
		tier     Tier
		reason   string
		minScore float64
	}{
		{name: "empty", stage: "stock", content: "   ", reason: "empty_summary"},
		{name: "explicit discard", stage: "stock", content: "Buy the dip on strong earnings", meta: map[string]any{"retention": "discard"}, reason: "explicit_discard"},
		{name: "raw upload", stage: "expert", content: "Full analyst report text pasted here", meta: map[string]any{"memory_kind": "raw_upload"}, reason: "raw_upload_not_persisted"},
		{name: "forced floor", stage: "stock", content: "ok", meta: forced(0.3), keep: true, tier: TierLongTerm, reason: "forced_keep", minScore: 0.55},
		{name: "low value", stage: "stock", content: "Trading volume was quiet today across the board", meta: map[string]any{"confidence": 0.3, "score": 0.05}, reason: "low_value_signal"},
		{
			name:     "structural long term",
			stage:    "industry",
			content:  "Earnings guidance raised; buy on pullback with tail risk below 120",
			meta:     map[string]any{"confidence": 0.9, "score": 0.6, "evidence_count": 3},
			keep:     true,
			tier:     TierLongTerm,
			reason:   "heuristic_keep",
			minScore: 0.78,
		},
		{name: "tier override", stage: "stock", content: "Short-term bounce likely, buy small size", meta: map[string]any{"retention": "ephemeral", "confidence": 0.7}, keep: true, tier: TierEphemeral, reason: "heuristic_keep"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.stage, tc.content, tc.meta)
			assert.Equal(t, tc.keep, d.Keep)
			assert.Equal(t, tc.reason, d.Reason)
			if tc.keep {
				assert.Equal(t, tc.tier, d.Tier)
				assert.GreaterOrEqual(t, d.Importance, tc.minScore)
			}
		})
	}
}

func TestDecide_Deterministic(t *testing.T) {
	meta := map[string]any{"confidence": 0.66, "score": -0.3, "evidence_count": 1}
	a := Decide("stock", "Margin pressure from input costs; reduce exposure", meta)
	b := Decide("stock", "Margin pressure from input costs; reduce exposure", meta)
	assert.Equal(t, a, b)
}

func TestStore_SymbolIsolation(t *testing.T) {
	s, _ := newTestStore(Config{})
	_, d := s.Write("stock", "AAA", "AAA demand is accelerating into the holiday quarter", strong())
	require.True(t, d.Keep)
	_, d = s.Write("stock", "BBB", "BBB demand is collapsing after the recall", strong())
	require.True(t, d.Keep)

	got := s.Retrieve("stock", "aaa", "demand", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "AAA", got[0].Symbol)
	assert.Equal(t, ScopeSymbol, got[0].Scope)

	assert.Empty(t, s.Retrieve("industry", "AAA", "", 10))
}

func TestStore_GlobalStageIgnoresSymbol(t *testing.T) {
	s, _ := newTestStore(Config{})
	e, _ := s.Write("macro", "AAA", "Central bank policy is turning dovish as inflation cools", strong())
	require.NotNil(t, e)
	assert.Equal(t, ScopeGlobal, e.Scope)
	assert.Empty(t, e.Symbol)

	got := s.Retrieve("macro", "ZZZ", "", 5)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, 1, got[0].AccessCount)
}

func TestStore_WriteRecordsRetentionDecision(t *testing.T) {
	s, _ := newTestStore(Config{})
	e, _ := s.Write("stock", "AAA", "AAA demand is accelerating into the holiday quarter", strong())
	require.NotNil(t, e)

	rd, ok := e.Metadata["retention_decision"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "heuristic_keep", rd["reason"])
	assert.Equal(t, string(e.Tier), rd["memory_type"])
}

func TestStore_Expiry(t *testing.T) {
	s, c := newTestStore(Config{})
	meta := strong()
	meta["retention"] = "ephemeral"
	_, d := s.Write("stock", "AAA", "Intraday spread widened sharply near the close", meta)
	require.True(t, d.Keep)
	meta = strong()
	meta["retention"] = "short_term"
	s.Write("stock", "AAA", "Weekly setup still constructive above support", meta)
	require.Equal(t, 2, s.Len())

	c.advance(25 * time.Hour)
	assert.Len(t, s.Retrieve("stock", "AAA", "", 10), 1)

	c.advance(30 * 24 * time.Hour)
	assert.Empty(t, s.Retrieve("stock", "AAA", "", 10))
	s.Prune()
	assert.Equal(t, 0, s.Len())
}

func TestStore_EphemeralTTLCappedAtOneDay(t *testing.T) {
	s, c := newTestStore(Config{EphemeralTTL: 72 * time.Hour})
	meta := strong()
	meta["retention"] = "ephemeral"
	_, d := s.Write("stock", "AAA", "Intraday spread widened sharply near the close", meta)
	require.True(t, d.Keep)

	c.advance(25 * time.Hour)
	assert.Empty(t, s.Retrieve("stock", "AAA", "", 10))
}

func TestStore_RankingPrefersQueryMatch(t *testing.T) {
	s, _ := newTestStore(Config{})
	s.Write("stock", "AAA", "Retail sales data softer than expected, consumers cautious", strong())
	s.Write("stock", "AAA", "Semiconductor export controls tighten for chip makers", strong())

	got := s.Retrieve("stock", "AAA", "semiconductor export", 2)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Content, "Semiconductor")
}

func TestStore_Summary(t *testing.T) {
	s, _ := newTestStore(Config{})
	assert.Equal(t, "No relevant memory found.", s.Summary("stock", "AAA", "", 5))

	s.Write("stock", "AAA", "AAA demand is accelerating into the holiday quarter", strong())
	assert.Equal(t, "[2026-10-19 10:00] AAA demand is accelerating into the holiday quarter", s.Summary("stock", "AAA", "", 5))
}

func TestStore_BucketCap(t *testing.T) {
	s, _ := newTestStore(Config{MaxPerBucket: 3})
	for _, imp := range []float64{0.6, 0.7, 0.8, 0.9, 1.0} {
		s.Write("stock", "AAA", "forced note", forced(imp))
	}

	got := s.Retrieve("stock", "AAA", "", 10)
	require.Len(t, got, 3)
	for _, e := range got {
		assert.GreaterOrEqual(t, e.Importance, 0.8)
	}
}

func TestStore_GlobalCap(t *testing.T) {
	s, _ := newTestStore(Config{MaxEntries: 2})
	s.Write("stock", "AAA", "forced note", forced(0.6))
	s.Write("stock", "BBB", "forced note", forced(0.9))
	s.Write("stock", "CCC", "forced note", forced(0.8))

	assert.Equal(t, 2, s.Len())
	assert.Empty(t, s.Retrieve("stock", "AAA", "", 5))
}

func TestStore_StaleLowImportancePruned(t *testing.T) {
	s, c := newTestStore(Config{})
	s.Write("stock", "AAA", "forced note", forced(0.6))
	e, _ := s.Write("stock", "AAA", "another forced note", forced(0.6))
	require.NotNil(t, e)

	// force one entry under the stale threshold
	s.mu.Lock()
	s.entries[e.ID].Importance = 0.3
	s.mu.Unlock()

	c.advance(15 * 24 * time.Hour)
	assert.Equal(t, 1, s.Prune())
	assert.Equal(t, 1, s.Len())
}

func TestStore_RemoveSymbol(t *testing.T) {
	s, _ := newTestStore(Config{})
	s.Write("stock", "AAA", "forced note", forced(0.6))
	s.Write("expert", "AAA", "forced note", forced(0.6))
	s.Write("stock", "BBB", "forced note", forced(0.6))

	assert.Equal(t, 2, s.RemoveSymbol("aaa"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_ExportRestore(t *testing.T) {
	s, c := newTestStore(Config{})
	s.Write("stock", "AAA", "forced note", forced(0.6))
	s.Write("macro", "", "Rates plateau through the next quarter", strong())

	restored := NewStore(Config{}, WithClock(c.now))
	restored.Restore(s.Export())

	assert.Equal(t, s.Len(), restored.Len())
	assert.Equal(t, s.Counts(), restored.Counts())
}
