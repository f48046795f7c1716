package calibration

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"TradeDesk/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func snapshot(price float64) models.MarketSnapshot {
	return models.MarketSnapshot{Price: price, VWAP: price, BidSize: 10000, AskSize: 10000}
}

func TestComputeSignal_FlowOnly(t *testing.T) {
	e := NewEngine(Config{}, WithClock(fixedClock()))
	flow := models.FlowSnapshot{LargeOrderNetValue: 1e6, AverageDailyVolume: 1e7}

	out := e.ComputeSignal("AAA", snapshot(100), flow, nil, 0)

	assert.InDelta(t, 0.05, out.FlowScore, 1e-12)
	assert.InDelta(t, 0.0175, out.MarketAlpha, 1e-12)
	assert.InDelta(t, 0.5, out.Gate, 1e-12)
	assert.InDelta(t, 0.00875, out.FinalAlpha, 1e-12)
	assert.InDelta(t, 0.02, out.Volatility, 1e-12)
	assert.InDelta(t, 0.2625, out.Position, 1e-9)
}

func TestComputeSignal_ResearchFactor(t *testing.T) {
	e := NewEngine(Config{})
	conclusions := map[models.StageName]models.Conclusion{
		models.StageMacro:    {Score: 1, Confidence: 1},
		models.StageStock:    {Score: -1, Confidence: 0.5},
		models.StageDecision: {Score: 1, Confidence: 1},
	}

	out := e.ComputeSignal("AAA", snapshot(100), models.FlowSnapshot{}, conclusions, 0)

	assert.InDelta(t, 0.075/0.425, out.ResearchFactor, 1e-5)
	assert.InDelta(t, 1.0, out.Divergence, 1e-12)
}

func TestComputeSignal_Bounded(t *testing.T) {
	p := DefaultParams()
	extreme := map[models.StageName]models.Conclusion{
		models.StageMacro: {Score: 1, Confidence: 1},
		models.StageStock: {Score: 1, Confidence: 1},
	}
	cases := []struct {
		name      string
		flow      models.FlowSnapshot
		eventRisk float64
	}{
		{"huge inflow", models.FlowSnapshot{LargeOrderNetValue: 1e15, DarkPoolNet: 1e15, OptionsNotional: 1e15, AverageDailyVolume: 1}, 0},
		{"huge outflow", models.FlowSnapshot{LargeOrderNetValue: -1e15, AverageDailyVolume: 1}, 0},
		{"extreme event risk", models.FlowSnapshot{LargeOrderNetValue: 1e6, AverageDailyVolume: 1e6}, 1e9},
		{"negative event risk", models.FlowSnapshot{LargeOrderNetValue: 1e6, AverageDailyVolume: 1e6}, -1e9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEngine(Config{})
			for _, price := range []float64{100, 250, 1, 1e6} {
				out := e.ComputeSignal("AAA", snapshot(price), tc.flow, extreme, tc.eventRisk)
				assert.Greater(t, out.Gate, 0.0)
				assert.Less(t, out.Gate, 1.0)
				assert.LessOrEqual(t, math.Abs(out.Position), p.PosMax)
				assert.LessOrEqual(t, math.Abs(out.MarketAlpha), 6.0)
				assert.False(t, math.IsNaN(out.Position))
			}
		})
	}
}

func TestComputeSignal_ResolvesPreviousSample(t *testing.T) {
	e := NewEngine(Config{})

	e.ComputeSignal("AAA", snapshot(100), models.FlowSnapshot{}, nil, 0)
	assert.Equal(t, 0, e.SampleCount())
	assert.True(t, e.HasPending("AAA"))

	e.ComputeSignal("AAA", snapshot(101), models.FlowSnapshot{}, nil, 0.2)
	require.Equal(t, 1, e.SampleCount())
	s := e.samples[0]
	assert.InDelta(t, 0.01, s.Y, 1e-12)
	assert.Equal(t, 1.0, s.X[0])
	assert.Equal(t, 0.0, s.X[1])
	assert.Equal(t, 0.0, s.EventRisk)

	e.ComputeSignal("AAA", snapshot(0), models.FlowSnapshot{}, nil, 0)
	assert.Equal(t, 1, e.SampleCount())
}

func TestComputeSignal_VolatilityWindow(t *testing.T) {
	e := NewEngine(Config{})
	price := 100.0
	var out models.SignalOutput
	for i := 0; i < 15; i++ {
		if i%2 == 0 {
			price *= 1.05
		} else {
			price /= 1.05
		}
		out = e.ComputeSignal("AAA", snapshot(price), models.FlowSnapshot{}, nil, 0)
	}
	assert.Greater(t, out.Volatility, 0.02)
	assert.LessOrEqual(t, out.Volatility, 0.12)
}

func TestForget(t *testing.T) {
	e := NewEngine(Config{})
	e.ComputeSignal("AAA", snapshot(100), models.FlowSnapshot{}, nil, 0)
	e.ComputeSignal("BBB", snapshot(100), models.FlowSnapshot{}, nil, 0)

	e.Retain(map[string]bool{"BBB": true})

	assert.False(t, e.HasPending("AAA"))
	assert.True(t, e.HasPending("BBB"))
}

func TestTransfer(t *testing.T) {
	old := NewEngine(Config{})
	old.ComputeSignal("AAA", snapshot(100), models.FlowSnapshot{}, nil, 0)
	old.ComputeSignal("AAA", snapshot(102), models.FlowSnapshot{}, nil, 0)
	old.params.K = 1.9

	fresh := NewEngine(Config{})
	Transfer(old, fresh)

	assert.Equal(t, 1, fresh.SampleCount())
	assert.True(t, fresh.HasPending("AAA"))
	assert.Equal(t, DefaultParams(), fresh.Params())

	// the carried last price feeds the next return
	out := fresh.ComputeSignal("AAA", snapshot(102*1.01), models.FlowSnapshot{}, nil, 0)
	assert.Equal(t, 2, fresh.SampleCount())
	assert.NotZero(t, out.MarketAlpha)
}

func TestSolve(t *testing.T) {
	var a [featureCount][featureCount + 1]float64
	want := [featureCount]float64{1, -2, 0.5, 3, 0}
	for i := 0; i < featureCount; i++ {
		for j := 0; j < featureCount; j++ {
			a[i][j] = 1 / float64(i+j+1)
		}
		a[i][i] += 1
		for j := 0; j < featureCount; j++ {
			a[i][featureCount] += a[i][j] * want[j]
		}
	}

	got, err := solve(a)

	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func syntheticSamples(n int) []Sample {
	rnd := rand.New(rand.NewPCG(1, 2))
	out := make([]Sample, n)
	for i := range out {
		r := (rnd.Float64() - 0.5) / 10
		z := (rnd.Float64() - 0.5) / 25
		imb := rnd.Float64()*2 - 1
		wf := rnd.Float64()*2 - 1
		out[i] = Sample{
			Symbol: "AAA",
			X:      [featureCount]float64{1, r, z, imb, wf},
			Y:      0.5*r + 0.1*wf,
		}
	}
	return out
}
