package ledger

import "github.com/shopspring/decimal"

// State is the persisted form of the ledger.
type State struct {
	InitialCapital decimal.Decimal                `json:"initial_capital"`
	Cash           decimal.Decimal                `json:"cash"`
	PeakValue      decimal.Decimal                `json:"peak_value"`
	MaxDrawdown    float64                        `json:"max_drawdown"`
	Positions      map[string]Position            `json:"positions"`
	Trades         []Order                        `json:"trade_history"`
	DailyCounts    map[string]int                 `json:"daily_trade_counts"`
	WeeklyDays     map[string]map[string][]string `json:"weekly_trade_days"`
	Equity         []EquitySnapshot               `json:"equity_history"`
}

func (l *Ledger) Export() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := State{
		InitialCapital: l.initialCapital,
		Cash:           l.cash,
		PeakValue:      l.peakValue,
		MaxDrawdown:    l.maxDrawdown,
		Positions:      make(map[string]Position, len(l.positions)),
		Trades:         append([]Order(nil), l.trades...),
		DailyCounts:    make(map[string]int, len(l.dailyCounts)),
		WeeklyDays:     make(map[string]map[string][]string, len(l.weeklyDays)),
		Equity:         append([]EquitySnapshot(nil), l.equity...),
	}
	for k, p := range l.positions {
		st.Positions[k] = *p
	}
	for k, v := range l.dailyCounts {
		st.DailyCounts[k] = v
	}
	for sym, weeks := range l.weeklyDays {
		cp := make(map[string][]string, len(weeks))
		for wk, days := range weeks {
			cp[wk] = append([]string(nil), days...)
		}
		st.WeeklyDays[sym] = cp
	}
	return st
}

// Restore replaces the ledger's state. An empty equity history is seeded
// with a restore_init snapshot so windowed queries have a base.
func (l *Ledger) Restore(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st.InitialCapital.IsPositive() {
		l.initialCapital = st.InitialCapital
	}
	l.cash = st.Cash
	l.peakValue = decimal.Max(st.PeakValue, l.initialCapital)
	l.maxDrawdown = st.MaxDrawdown
	l.positions = make(map[string]*Position, len(st.Positions))
	for k, p := range st.Positions {
		cp := p
		l.positions[k] = &cp
	}
	l.trades = append([]Order(nil), st.Trades...)
	l.dailyCounts = make(map[string]int, len(st.DailyCounts))
	for k, v := range st.DailyCounts {
		l.dailyCounts[k] = v
	}
	l.weeklyDays = make(map[string]map[string][]string, len(st.WeeklyDays))
	for sym, weeks := range st.WeeklyDays {
		cp := make(map[string][]string, len(weeks))
		for wk, days := range weeks {
			cp[wk] = append([]string(nil), days...)
		}
		l.weeklyDays[sym] = cp
	}
	l.equity = append([]EquitySnapshot(nil), st.Equity...)
	if len(l.equity) == 0 {
		l.recordSnapshot(l.now(), "restore_init")
	}
}
