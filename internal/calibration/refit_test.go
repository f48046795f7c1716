package calibration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefit_SkipsBelowMinimum(t *testing.T) {
	e := NewEngine(Config{}, WithClock(fixedClock()))
	e.samples = syntheticSamples(39)
	before := e.Params()

	rep := e.Refit(RuntimeStats{TradeCount: 3})

	assert.Equal(t, ModeSkip, rep.Training.Mode)
	assert.Equal(t, 39, rep.Training.SampleCount)
	assert.Equal(t, 40, rep.Training.MinRequired)
	assert.Equal(t, before, e.Params())
	assert.Equal(t, before, rep.ParamsAfter)
	assert.Equal(t, 0.5, rep.Runtime.OpenWinRate)

	last, ok := e.LastReport()
	require.True(t, ok)
	assert.Equal(t, rep, last)
}

func TestRefit_BlendsRidgeFit(t *testing.T) {
	e := NewEngine(Config{})
	e.samples = syntheticSamples(200)

	rep := e.Refit(RuntimeStats{})

	require.Equal(t, ModeRidge, rep.Training.Mode)
	p := e.Params()
	assert.InDelta(t, 0.75*0.3+0.25*0.5, p.Beta1, 0.01)
	assert.InDelta(t, 0.75*0.2, p.Beta2, 0.01)
	assert.InDelta(t, 0.75*0.15, p.Beta3, 0.01)
	assert.InDelta(t, 0.75*0.35+0.25*0.1, p.Beta4, 0.01)
	assert.Greater(t, rep.Training.DirectionalHitRate, 0.9)

	// flat research inputs leave the gate alone
	assert.Equal(t, 1.5, p.Gamma1)
	assert.Equal(t, 2.0, p.Gamma2)

	// no open positions means a neutral win rate, so risk tightens
	assert.InDelta(t, 0.6*0.94, p.K, 1e-12)
	assert.InDelta(t, 0.5*1.05, p.LambdaDiv, 1e-12)
	assert.InDelta(t, 0.8*0.96, p.PosMax, 1e-12)
	assert.Equal(t, DefaultParams(), rep.ParamsBefore)
}

func TestRefit_LoosensAfterGoodRun(t *testing.T) {
	e := NewEngine(Config{})
	e.samples = syntheticSamples(200)

	rep := e.Refit(RuntimeStats{
		Positions: []OpenPosition{{Symbol: "AAA", Quantity: 10, AvgCost: 10, MarkPrice: 12}},
		TotalPnL:  500,
	})

	assert.Equal(t, 1.0, rep.Runtime.OpenWinRate)
	p := e.Params()
	assert.InDelta(t, 0.6*1.04, p.K, 1e-12)
	assert.InDelta(t, 0.5*0.97, p.LambdaDiv, 1e-12)
	assert.InDelta(t, 0.8*1.02, p.PosMax, 1e-12)
}

func TestRefit_DrawdownRaisesDivergencePenalty(t *testing.T) {
	e := NewEngine(Config{})
	e.samples = syntheticSamples(100)

	e.Refit(RuntimeStats{MaxDrawdown: 0.15})

	assert.InDelta(t, 2.0*1.04, e.Params().Gamma2, 1e-12)
}

func TestRefit_UsesLatestQuoteWhenUnmarked(t *testing.T) {
	rt := runtimeReport(RuntimeStats{
		Positions: []OpenPosition{
			{Symbol: "AAA", Quantity: 5, AvgCost: 10},
			{Symbol: "BBB", Quantity: 5, AvgCost: 10, MarkPrice: 9},
			{Symbol: "CCC", Quantity: 0, AvgCost: 10, MarkPrice: 20},
		},
		LatestQuotes: map[string]float64{"AAA": 11},
	})

	assert.Equal(t, 2, rt.OpenPositions)
	assert.Equal(t, 0.5, rt.OpenWinRate)
}

func TestTrainingStats_KeepsZeroHitRate(t *testing.T) {
	raw, err := json.Marshal(TrainingStats{SampleCount: 60, Mode: ModeRidge})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"directional_hit_rate":0`)
	assert.Contains(t, string(raw), `"mse":0`)
}
