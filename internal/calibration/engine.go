package calibration

import (
	"math"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
)

const featureCount = 5

type Config struct {
	MinSamples   int `yaml:"min_samples" default:"40"`
	MaxSamples   int `yaml:"max_samples" default:"4000"`
	FitWindow    int `yaml:"fit_window" default:"1500"`
	ReturnWindow int `yaml:"return_window" default:"120"`
}

func (c Config) withDefaults() Config {
	if c.MinSamples <= 0 {
		c.MinSamples = 40
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = 4000
	}
	if c.FitWindow <= 0 {
		c.FitWindow = 1500
	}
	if c.ReturnWindow <= 0 {
		c.ReturnWindow = 120
	}
	return c
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithParams(p Params) Option {
	return func(e *Engine) { e.params = p }
}

// Engine computes calibrated signals and refits its coefficients online.
// Per-symbol state is independent, so callers may fan out across symbols.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	params     Params
	lastPrice  map[string]float64
	returns    map[string][]float64
	pending    map[string]pendingSample
	samples    []Sample
	lastReport *Report
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		params:    DefaultParams(),
		lastPrice: make(map[string]float64),
		returns:   make(map[string][]float64),
		pending:   make(map[string]pendingSample),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// ComputeSignal derives features from the snapshots, blends in the research
// conclusions and sizes a position. It also rolls the symbol's pending
// training sample forward.
func (e *Engine) ComputeSignal(symbol string, snap models.MarketSnapshot, flow models.FlowSnapshot,
	conclusions map[models.StageName]models.Conclusion, eventRisk float64) models.SignalOutput {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.params
	r := e.observeReturn(symbol, snap.Price)
	z := 0.0
	if snap.VWAP != 0 {
		z = (snap.Price - snap.VWAP) / snap.VWAP
	}
	imb := snap.Imbalance()
	vol := e.volatility(symbol)

	bf, dp, of := flow.Ratios()
	wf := clip(p.W1*clip(bf, -3, 3)+p.W2*clip(dp, -3, 3)+p.W3*clip(of, -3, 3), -4, 4)

	alpha := clip(p.Beta0+p.Beta1*r+p.Beta2*z+p.Beta3*imb+p.Beta4*wf, -6, 6)

	la, div := researchFactor(p, conclusions)
	laAdj := la * (1 - p.LambdaDiv*div)

	x := clip(p.Gamma0+p.Gamma1*laAdj-p.Gamma2*div-p.Gamma3*eventRisk, -20, 20)
	gate := 1 / (1 + math.Exp(-x))

	final := gate * alpha
	if vol <= 0 {
		vol = 0.01
	}
	position := clip(p.K*final/vol, -p.PosMax, p.PosMax)

	e.recordSample(symbol, snap.Price, [featureCount]float64{1, r, z, imb, wf}, laAdj, div, eventRisk)

	return models.SignalOutput{
		Symbol:         symbol,
		Timestamp:      e.now(),
		MarketAlpha:    alpha,
		Gate:           gate,
		FinalAlpha:     final,
		Position:       position,
		Volatility:     vol,
		FlowScore:      wf,
		ResearchFactor: la,
		Divergence:     div,
		EventRisk:      eventRisk,
	}
}

// observeReturn records price as the symbol's last price and returns the
// one-step return. Only returns over a positive previous price enter the
// volatility window.
func (e *Engine) observeReturn(symbol string, price float64) float64 {
	prev, ok := e.lastPrice[symbol]
	e.lastPrice[symbol] = price
	if !ok || prev <= 0 {
		return 0
	}
	r := (price - prev) / prev
	w := append(e.returns[symbol], r)
	if extra := len(w) - e.cfg.ReturnWindow; extra > 0 {
		w = append([]float64(nil), w[extra:]...)
	}
	e.returns[symbol] = w
	return r
}

func (e *Engine) volatility(symbol string) float64 {
	w := e.returns[symbol]
	if len(w) < 10 {
		return 0.02
	}
	return clip(stddev(w), 0.005, 0.12)
}

// researchFactor is the confidence- and department-weighted mean score of
// the research conclusions, plus the population std-dev of their scores.
func researchFactor(p Params, conclusions map[models.StageName]models.Conclusion) (float64, float64) {
	num := 0.0
	den := p.Epsilon
	scores := make([]float64, 0, len(models.ResearchStages))
	for _, stage := range models.ResearchStages {
		c, ok := conclusions[stage]
		if !ok {
			continue
		}
		w := p.stageWeight(stage)
		num += w * c.Confidence * c.Score
		den += w * c.Confidence
		scores = append(scores, c.Score)
	}
	la := 0.0
	if den > p.Epsilon {
		la = num / den
	}
	div := 0.0
	if len(scores) > 1 {
		div = stddev(scores)
	}
	return la, div
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	v := 0.0
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)))
}
