package calibration

import (
	"strings"
	"time"
)

// Sample is a resolved training pair: features at t and the realised
// return from t to the next observation.
type Sample struct {
	Symbol     string                `json:"symbol"`
	Timestamp  time.Time             `json:"ts"`
	X          [featureCount]float64 `json:"x"`
	LAAdjusted float64               `json:"la_adjusted"`
	Divergence float64               `json:"divergence"`
	EventRisk  float64               `json:"event_risk"`
	Y          float64               `json:"y"`
}

type pendingSample struct {
	Price      float64               `json:"price"`
	X          [featureCount]float64 `json:"x"`
	LAAdjusted float64               `json:"la_adjusted"`
	Divergence float64               `json:"divergence"`
	EventRisk  float64               `json:"event_risk"`
}

func (e *Engine) recordSample(symbol string, price float64, x [featureCount]float64, laAdj, div, eventRisk float64) {
	if price <= 0 {
		return
	}
	if prev, ok := e.pending[symbol]; ok && prev.Price > 0 {
		e.samples = append(e.samples, Sample{
			Symbol:     symbol,
			Timestamp:  e.now(),
			X:          prev.X,
			LAAdjusted: prev.LAAdjusted,
			Divergence: prev.Divergence,
			EventRisk:  prev.EventRisk,
			Y:          (price - prev.Price) / prev.Price,
		})
		if extra := len(e.samples) - e.cfg.MaxSamples; extra > 0 {
			e.samples = append([]Sample(nil), e.samples[extra:]...)
		}
	}
	e.pending[symbol] = pendingSample{Price: price, X: x, LAAdjusted: laAdj, Divergence: div, EventRisk: eventRisk}
}

func (e *Engine) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// HasPending reports whether a sample is waiting for the symbol's next price.
func (e *Engine) HasPending(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[symbol]
	return ok
}

// Forget drops the symbol's pending sample, last price and return window.
// Resolved samples stay in the pooled training set.
func (e *Engine) Forget(symbol string) {
	symbol = strings.ToUpper(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, symbol)
	delete(e.lastPrice, symbol)
	delete(e.returns, symbol)
}

// Retain keeps per-symbol state only for the given symbols.
func (e *Engine) Retain(active map[string]bool) {
	e.mu.Lock()
	syms := make([]string, 0)
	for s := range e.pending {
		if !active[s] {
			syms = append(syms, s)
		}
	}
	for s := range e.lastPrice {
		if !active[s] {
			syms = append(syms, s)
		}
	}
	e.mu.Unlock()
	for _, s := range syms {
		e.Forget(s)
	}
}
