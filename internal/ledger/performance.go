package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Window struct {
	Name string
	Span time.Duration
}

const day = 24 * time.Hour

// Windows are the lookbacks reported by the performance queries.
var Windows = []Window{
	{Name: "week", Span: 7 * day},
	{Name: "month", Span: 30 * day},
	{Name: "half_year", Span: 182 * day},
	{Name: "year", Span: 365 * day},
}

// WindowResult is the change over one lookback window.
// Complete is false when history does not reach back far enough and the
// earliest snapshot was used as the base instead.
type WindowResult struct {
	PnL       decimal.Decimal `json:"pnl"`
	Return    float64         `json:"return"`
	BaseValue decimal.Decimal `json:"base_value"`
	BaseAt    *time.Time      `json:"base_at"`
	Complete  bool            `json:"complete"`
}

type PortfolioPerformance struct {
	AsOf           time.Time               `json:"as_of"`
	TotalValue     decimal.Decimal         `json:"total_value"`
	SinceInception WindowResult            `json:"since_inception"`
	Windows        map[string]WindowResult `json:"windows"`
}

type SymbolPerformance struct {
	Symbol     string                  `json:"symbol"`
	CurrentPnL decimal.Decimal         `json:"current_pnl"`
	Windows    map[string]WindowResult `json:"windows"`
}

// PortfolioPerformance reports total-value change over each window.
func (l *Ledger) PortfolioPerformance() PortfolioPerformance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	current := l.totalValue()
	out := PortfolioPerformance{
		AsOf:           now,
		TotalValue:     current,
		SinceInception: change(current, l.initialCapital, nil, true),
		Windows:        make(map[string]WindowResult, len(Windows)),
	}
	for _, w := range Windows {
		snap, complete, ok := l.baseSnapshot(now.Add(-w.Span))
		if !ok {
			out.Windows[w.Name] = change(current, l.initialCapital, nil, false)
			continue
		}
		ts := snap.Timestamp
		out.Windows[w.Name] = change(current, snap.TotalValue, &ts, complete)
	}
	return out
}

// SymbolPerformance reports each symbol's cumulative P&L change over each window.
// An empty list means every symbol with a position.
func (l *Ledger) SymbolPerformance(symbols []string) map[string]SymbolPerformance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(symbols) == 0 {
		for sym := range l.positions {
			symbols = append(symbols, sym)
		}
	}
	now := l.now()
	out := make(map[string]SymbolPerformance, len(symbols))
	for _, sym := range symbols {
		current := decimal.Zero
		if p, ok := l.positions[sym]; ok {
			current = p.PnL()
		}
		perf := SymbolPerformance{
			Symbol:     sym,
			CurrentPnL: current,
			Windows:    make(map[string]WindowResult, len(Windows)),
		}
		for _, w := range Windows {
			snap, complete, ok := l.baseSnapshot(now.Add(-w.Span))
			if !ok {
				perf.Windows[w.Name] = WindowResult{PnL: current}
				continue
			}
			ts := snap.Timestamp
			base := snap.SymbolPnL[sym]
			perf.Windows[w.Name] = WindowResult{
				PnL:       current.Sub(base),
				BaseValue: base,
				BaseAt:    &ts,
				Complete:  complete,
			}
		}
		out[sym] = perf
	}
	return out
}

// baseSnapshot finds the most recent snapshot at or before cutoff, falling
// back to the earliest snapshot when history is shorter than the window.
func (l *Ledger) baseSnapshot(cutoff time.Time) (EquitySnapshot, bool, bool) {
	if snap, ok := l.snapshotAtOrBefore(cutoff); ok {
		return snap, true, true
	}
	if len(l.equity) == 0 {
		return EquitySnapshot{}, false, false
	}
	return l.equity[0], false, true
}

func change(current, base decimal.Decimal, at *time.Time, complete bool) WindowResult {
	r := WindowResult{
		PnL:       current.Sub(base),
		BaseValue: base,
		BaseAt:    at,
		Complete:  complete,
	}
	if base.IsPositive() {
		r.Return = r.PnL.Div(base).InexactFloat64()
	}
	return r
}
