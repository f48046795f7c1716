package ledger

import (
	"testing"
	"time"

	"TradeDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// monday 2026-10-19 10:00 UTC
func newTestLedger(cfg Config) (*Ledger, *clock) {
	c := &clock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	return New(cfg, WithClock(c.now)), c
}

func long(symbol string, target float64) models.Decision {
	return models.Decision{ID: "d-" + symbol, Symbol: symbol, Direction: models.DirectionLong, TargetPosition: target}
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestExecuteDecision_BuyFillsWholeShares(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})

	o := l.ExecuteDecision(long("AAA", 0.1), 100)

	require.Equal(t, OrderFilled, o.Status, o.Reason)
	assert.Equal(t, SideBuy, o.Side)
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(100)), o.Quantity.String())

	sum := l.AccountSummary()
	assert.True(t, sum.Cash.Equal(dec(90000)), sum.Cash.String())
	assert.True(t, sum.TotalValue.Equal(dec(100000)), sum.TotalValue.String())
	assert.Equal(t, 1, sum.OpenPositions)
	assert.Equal(t, 1, sum.TradeCount)
}

func TestExecuteDecision_NeverNegativeCash(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 10000, MaxDailyTrades: 5, MaxWeeklyDays: 5, CommissionRate: 0.0001, Slippage: 0.001})

	o := l.ExecuteDecision(long("AAA", 1.0), 33.33)

	require.Equal(t, OrderFilled, o.Status, o.Reason)
	sum := l.AccountSummary()
	assert.False(t, sum.Cash.IsNegative(), sum.Cash.String())
	assert.True(t, o.Quantity.Equal(o.Quantity.Floor()))
}

func TestExecuteDecision_ShortNeverOpensPosition(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})

	o := l.ExecuteDecision(models.Decision{Symbol: "AAA", Direction: models.DirectionShort, TargetPosition: 0.5}, 100)

	assert.Equal(t, OrderRejected, o.Status)
	_, ok := l.Position("AAA")
	assert.False(t, ok)
	assert.True(t, l.AccountSummary().Cash.Equal(dec(100000)))
}

func TestExecuteDecision_SellClippedToHeld(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})
	require.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.1), 100).Status)

	o := l.ExecuteDecision(models.Decision{Symbol: "AAA", Direction: models.DirectionShort, TargetPosition: 1.0}, 110)

	require.Equal(t, OrderFilled, o.Status, o.Reason)
	assert.Equal(t, SideSell, o.Side)
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(100)), o.Quantity.String())

	pos, ok := l.Position("AAA")
	require.True(t, ok)
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.RealizedPnL.Equal(dec(1000)), pos.RealizedPnL.String())
	assert.True(t, l.IsFlat("AAA"))
}

func TestExecuteDecision_FlatExitsPartialShortReduces(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})
	require.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.4), 100).Status)

	o := l.ExecuteDecision(models.Decision{Symbol: "AAA", Direction: models.DirectionShort, TargetPosition: 0.1}, 100)
	require.Equal(t, OrderFilled, o.Status, o.Reason)
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(100)), o.Quantity.String())

	o = l.ExecuteDecision(models.Decision{Symbol: "AAA", Direction: models.DirectionFlat, TargetPosition: 0.05}, 100)
	require.Equal(t, OrderFilled, o.Status, o.Reason)
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(300)), o.Quantity.String())
	assert.True(t, l.IsFlat("AAA"))
}

func TestExecuteDecision_RejectsInvalidPrice(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000})

	for _, price := range []float64{0, -1} {
		o := l.ExecuteDecision(long("AAA", 0.1), price)
		assert.Equal(t, OrderRejected, o.Status)
		assert.ErrorIs(t, o.Err(), ErrRejected)
	}
	assert.True(t, l.AccountSummary().Cash.Equal(dec(100000)))
	assert.Len(t, l.TradeHistory("AAA", time.Time{}), 2)
}

func TestExecuteDecision_RejectsBelowMinimumNotional(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MinTradeNotional: 50, MaxDailyTrades: 5, MaxWeeklyDays: 5})

	o := l.ExecuteDecision(long("AAA", 0.0003), 100)

	assert.Equal(t, OrderRejected, o.Status)
	assert.Contains(t, o.Reason, "minimum")
}

func TestExecuteDecision_DefaultMinimumNotional(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})
	require.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.1), 100).Status)

	// 0.1005 of 100k is a 50 dollar rebalance
	o := l.ExecuteDecision(long("AAA", 0.1005), 100)

	assert.Equal(t, OrderRejected, o.Status)
	assert.Contains(t, o.Reason, "minimum")
	assert.Equal(t, 1, l.AccountSummary().TradeCount)
}

func TestExecuteDecision_LongWithNegativeTargetIsFlat(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})

	o := l.ExecuteDecision(long("AAA", -0.5), 100)
	assert.Equal(t, OrderRejected, o.Status, "nothing held, nothing to buy")
	_, ok := l.Position("AAA")
	assert.False(t, ok)

	require.Equal(t, OrderFilled, l.ExecuteDecision(long("BBB", 0.2), 100).Status)
	o = l.ExecuteDecision(long("BBB", -0.5), 100)
	require.Equal(t, OrderFilled, o.Status, o.Reason)
	assert.Equal(t, SideSell, o.Side)
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(200)), o.Quantity.String())
	assert.True(t, l.IsFlat("BBB"))
}

func TestExecuteDecision_DailyCap(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 2, MaxWeeklyDays: 5})

	first := l.ExecuteDecision(long("AAA", 0.1), 100)
	second := l.ExecuteDecision(long("AAA", 0.2), 100)
	third := l.ExecuteDecision(long("AAA", 0.3), 100)

	assert.Equal(t, OrderFilled, first.Status, first.Reason)
	assert.Equal(t, OrderFilled, second.Status, second.Reason)
	assert.Equal(t, OrderRejected, third.Status)
	assert.Contains(t, third.Reason, "trading limit")
	assert.Equal(t, 2, l.TradesToday("AAA"))
}

func TestExecuteDecision_WeeklyDaysResetAtWeekBoundary(t *testing.T) {
	l, c := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 1})

	require.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.1), 100).Status)

	c.advance(24 * time.Hour) // tuesday, same week
	o := l.ExecuteDecision(long("AAA", 0.2), 100)
	assert.Equal(t, OrderRejected, o.Status)
	assert.Contains(t, o.Reason, "weekly")

	c.advance(5 * 24 * time.Hour) // sunday, still same ISO week
	assert.Equal(t, OrderRejected, l.ExecuteDecision(long("AAA", 0.2), 100).Status)

	c.advance(24 * time.Hour) // monday of the next week
	assert.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.2), 100).Status)
}

func TestWeekStart(t *testing.T) {
	cases := []struct {
		day  time.Time
		want string
	}{
		{time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), "2026-10-19"},
		{time.Date(2026, 10, 25, 23, 0, 0, 0, time.UTC), "2026-10-19"},
		{time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC), "2026-10-26"},
		{time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), "2026-12-28"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, weekStart(tc.day).Format(dateLayout))
	}
}

func TestMarkToMarket_UpdatesDrawdown(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})
	require.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.5), 100).Status)

	l.MarkToMarket("AAA", 80)

	sum := l.AccountSummary()
	assert.True(t, sum.TotalValue.Equal(dec(90000)), sum.TotalValue.String())
	assert.InDelta(t, 0.10, sum.MaxDrawdown, 1e-9)
	pos, _ := l.Position("AAA")
	assert.True(t, pos.UnrealizedPnL.Equal(dec(-10000)))
	assert.InDelta(t, 0.4444, l.Exposure("AAA"), 1e-3)
}

func TestRecordEquitySnapshot_Dedupes(t *testing.T) {
	l, c := newTestLedger(Config{InitialCapital: 100000})

	l.RecordEquitySnapshot("a")
	c.advance(5 * time.Second)
	l.RecordEquitySnapshot("b")
	assert.Len(t, l.EquityHistory(), 1)

	c.advance(time.Minute)
	l.RecordEquitySnapshot("c")
	assert.Len(t, l.EquityHistory(), 2)
}

func TestExportRestore(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})
	require.Equal(t, OrderFilled, l.ExecuteDecision(long("AAA", 0.1), 100).Status)

	st := l.Export()
	restored, _ := newTestLedger(Config{InitialCapital: 100000, MaxDailyTrades: 5, MaxWeeklyDays: 5})
	restored.Restore(st)

	want, got := l.AccountSummary(), restored.AccountSummary()
	assert.Equal(t, want.Cash.String(), got.Cash.String())
	assert.Equal(t, want.TotalValue.String(), got.TotalValue.String())
	assert.Equal(t, want.OpenPositions, got.OpenPositions)
	assert.Equal(t, want.TradeCount, got.TradeCount)
	assert.Equal(t, 1, restored.TradesToday("AAA"))
}

func TestRestore_SeedsEmptyEquityHistory(t *testing.T) {
	l, _ := newTestLedger(Config{InitialCapital: 100000})

	l.Restore(State{InitialCapital: dec(100000), Cash: dec(100000)})

	hist := l.EquityHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, "restore_init", hist[0].Reason)
}
