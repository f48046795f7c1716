package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// EquitySnapshot is a timestamped account value with per-symbol P&L.
type EquitySnapshot struct {
	Timestamp  time.Time                  `json:"timestamp"`
	TotalValue decimal.Decimal            `json:"total_value"`
	Cash       decimal.Decimal            `json:"cash"`
	SymbolPnL  map[string]decimal.Decimal `json:"symbol_pnl"`
	Reason     string                     `json:"reason"`
}

type AccountSummary struct {
	AccountID      string          `json:"account_id"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Cash           decimal.Decimal `json:"cash"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	DailyPnL       decimal.Decimal `json:"daily_pnl"`
	PeakValue      decimal.Decimal `json:"peak_value"`
	MaxDrawdown    float64         `json:"max_drawdown"`
	OpenPositions  int             `json:"open_positions"`
	TradeCount     int             `json:"trade_count"`
}

// RecordEquitySnapshot appends a snapshot unless it duplicates the previous one.
func (l *Ledger) RecordEquitySnapshot(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordSnapshot(l.now(), reason)
}

func (l *Ledger) recordSnapshot(now time.Time, reason string) {
	value := l.totalValue()
	if n := len(l.equity); n > 0 {
		last := l.equity[n-1]
		if now.Sub(last.Timestamp) < l.cfg.SnapshotDedupWindow &&
			value.Sub(last.TotalValue).Abs().LessThan(decimal.NewFromFloat(0.01)) {
			return
		}
	}
	pnl := make(map[string]decimal.Decimal, len(l.positions))
	for sym, p := range l.positions {
		pnl[sym] = p.PnL()
	}
	l.equity = append(l.equity, EquitySnapshot{
		Timestamp:  now,
		TotalValue: value,
		Cash:       l.cash,
		SymbolPnL:  pnl,
		Reason:     reason,
	})
	if extra := len(l.equity) - l.cfg.MaxEquityHistory; extra > 0 {
		l.equity = append([]EquitySnapshot(nil), l.equity[extra:]...)
	}
}

func (l *Ledger) AccountSummary() AccountSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	s := AccountSummary{
		AccountID:      l.cfg.AccountID,
		InitialCapital: l.initialCapital,
		Cash:           l.cash,
		PeakValue:      l.peakValue,
		MaxDrawdown:    l.maxDrawdown,
	}
	for _, t := range l.trades {
		if t.Status == OrderFilled {
			s.TradeCount++
		}
	}
	for _, p := range l.positions {
		s.PositionsValue = s.PositionsValue.Add(p.MarketValue)
		s.RealizedPnL = s.RealizedPnL.Add(p.RealizedPnL)
		s.UnrealizedPnL = s.UnrealizedPnL.Add(p.UnrealizedPnL)
		if !p.IsFlat() {
			s.OpenPositions++
		}
	}
	s.TotalValue = l.cash.Add(s.PositionsValue)
	s.TotalPnL = s.TotalValue.Sub(l.initialCapital)

	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	base := l.initialCapital
	if snap, ok := l.snapshotAtOrBefore(midnight); ok {
		base = snap.TotalValue
	}
	s.DailyPnL = s.TotalValue.Sub(base)
	return s
}

// Positions returns every position with trading history, sorted by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the symbol's position and whether one exists.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// IsFlat reports whether no shares of symbol are held.
func (l *Ledger) IsFlat(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[symbol].IsFlat()
}

// Exposure is the symbol's market value as a fraction of total value.
func (l *Ledger) Exposure(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	total := l.totalValue()
	if !ok || !total.IsPositive() {
		return 0
	}
	return p.MarketValue.Div(total).InexactFloat64()
}

// TradeHistory returns trades, optionally filtered by symbol and a lower time bound.
func (l *Ledger) TradeHistory(symbol string, since time.Time) []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Order, 0, len(l.trades))
	for _, t := range l.trades {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		if !since.IsZero() && t.CreatedAt.Before(since) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// EquityHistory returns a copy of the snapshot history.
func (l *Ledger) EquityHistory() []EquitySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]EquitySnapshot(nil), l.equity...)
}

// snapshotAtOrBefore scans backwards for the latest snapshot not after t.
func (l *Ledger) snapshotAtOrBefore(t time.Time) (EquitySnapshot, bool) {
	for i := len(l.equity) - 1; i >= 0; i-- {
		if !l.equity[i].Timestamp.After(t) {
			return l.equity[i], true
		}
	}
	return EquitySnapshot{}, false
}
