package calibration

import "maps"

// Carryover is the state that survives rebuilding an engine.
type Carryover struct {
	Pending   map[string]pendingSample
	LastPrice map[string]float64
	Returns   map[string][]float64
	Samples   []Sample
}

// Carryover copies the engine's transferable state.
func (e *Engine) Carryover() Carryover {
	e.mu.Lock()
	defer e.mu.Unlock()
	rets := make(map[string][]float64, len(e.returns))
	for k, v := range e.returns {
		rets[k] = append([]float64(nil), v...)
	}
	return Carryover{
		Pending:   maps.Clone(e.pending),
		LastPrice: maps.Clone(e.lastPrice),
		Returns:   rets,
		Samples:   append([]Sample(nil), e.samples...),
	}
}

// Transfer moves carry-over state from old into a freshly built engine.
// Parameters and the last report stay with the new engine.
func Transfer(old, fresh *Engine) {
	if old == nil || fresh == nil || old == fresh {
		return
	}
	c := old.Carryover()
	fresh.mu.Lock()
	defer fresh.mu.Unlock()
	if c.Pending != nil {
		fresh.pending = c.Pending
	}
	if c.LastPrice != nil {
		fresh.lastPrice = c.LastPrice
	}
	fresh.returns = c.Returns
	fresh.samples = c.Samples
	if extra := len(fresh.samples) - fresh.cfg.MaxSamples; extra > 0 {
		fresh.samples = fresh.samples[extra:]
	}
}
