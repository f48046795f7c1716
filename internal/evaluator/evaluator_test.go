package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic_ResearchFollowsMarketAndEvidence(t *testing.T) {
	h := NewHeuristic()
	req := Request{
		Stage:  models.StageStock,
		Symbol: "AAA",
		Market: &models.MarketSnapshot{ChangePercent: 4},
		Evidence: []models.Evidence{
			{ID: "e1", Content: "Strong quarter, revenue beat and guidance raise", Reliability: 0.9},
		},
	}

	c, err := h.Evaluate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, models.StageStock, c.Stage)
	assert.Equal(t, "AAA", c.Symbol)
	assert.Greater(t, c.Score, 0.2)
	assert.Equal(t, "buy", c.Action)
	assert.Equal(t, []string{"e1"}, c.EvidenceIDs)
	assert.InDelta(t, 0.6, c.Confidence, 1e-9)
	assert.Greater(t, c.EventRisk, 0.0)
	assert.Equal(t, ProviderHeuristic, c.Provider)
}

func TestHeuristic_DecisionBlendsUpstream(t *testing.T) {
	h := NewHeuristic()
	req := Request{
		Stage:  models.StageDecision,
		Symbol: "AAA",
		Upstream: map[models.StageName]models.Conclusion{
			models.StageStock:    {Score: -0.9, Confidence: 0.8, EventRisk: 0.3},
			models.StageIndustry: {Score: -0.8, Confidence: 0.6},
		},
		Signal: &models.SignalOutput{FinalAlpha: -0.5},
	}

	c, err := h.Evaluate(context.Background(), req)

	require.NoError(t, err)
	assert.Less(t, c.Score, -0.5)
	assert.Equal(t, models.PoolActionRemoveIfFlat, c.PoolAction)
	assert.InDelta(t, 0.7, c.Confidence, 1e-9)
	assert.InDelta(t, 0.3, c.EventRisk, 1e-9)
}

func TestHeuristic_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristic().Evaluate(ctx, Request{Stage: models.StageMacro})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_Build(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{ProviderHeuristic, ProviderHTTP}, r.Providers())

	set, err := r.Build(Config{}, logger.NewNop())
	require.NoError(t, err)
	for _, stage := range []models.StageName{models.StageMacro, models.StageIndustry, models.StageStock, models.StageExpert, models.StageDecision} {
		ev, err := set.For(stage)
		require.NoError(t, err)
		assert.Equal(t, ProviderHeuristic, ev.Name())
	}
	_, err = set.For(models.StageQuant)
	assert.ErrorIs(t, err, ErrNoEvaluator)

	_, err = r.Build(Config{Stages: map[string]string{"expert": "oracle"}}, logger.NewNop())
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Build(Config{Default: ProviderHTTP}, logger.NewNop())
	assert.Error(t, err, "http provider needs a base url")
}

func TestHTTP_EvaluateNormalizes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/evaluate/industry", r.URL.Path)
		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAA", req.Symbol)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"score": 3.2, "confidence": 0.7, "thesis": "capex cycle", "action": "buy",
			"evidence_ids": []string{"x"}, "pool_action": " KEEP ",
		})
	}))
	defer srv.Close()

	ev, err := NewHTTP(HTTPConfig{BaseURL: srv.URL + "/", Burst: 1, RatePerSecond: 0.0001}, logger.NewNop())
	require.NoError(t, err)

	c, err := ev.Evaluate(context.Background(), Request{Stage: models.StageIndustry, Symbol: "AAA"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Score)
	assert.Equal(t, "keep", c.PoolAction)
	assert.Equal(t, ProviderHTTP, c.Provider)

	_, err = ev.Evaluate(context.Background(), Request{Stage: models.StageIndustry, Symbol: "AAA"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTP_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ev, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, Retries: 2}, logger.NewNop())
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), Request{Stage: models.StageMacro})
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
