package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrRejected wraps the reason of a rejected order when callers need an error.
var ErrRejected = errors.New("order rejected")

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

// Order is an immutable record of a filled or rejected execution attempt.
type Order struct {
	ID             string          `json:"order_id"`
	DecisionID     string          `json:"decision_id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side,omitempty"`
	Direction      string          `json:"direction"`
	Status         OrderStatus     `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	RequestedPrice decimal.Decimal `json:"price"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	Commission     decimal.Decimal `json:"commission"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Err returns ErrRejected with the reason for rejected orders, nil otherwise.
func (o Order) Err() error {
	if o.Status != OrderRejected {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, o.Reason)
}

type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	MarkPrice     decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *Position) mark(price decimal.Decimal, now time.Time) {
	p.MarkPrice = price
	p.MarketValue = p.Quantity.Mul(price)
	if p.Quantity.IsPositive() && p.AvgCost.IsPositive() {
		p.UnrealizedPnL = price.Sub(p.AvgCost).Mul(p.Quantity)
	} else {
		p.UnrealizedPnL = decimal.Zero
	}
	p.UpdatedAt = now
}

// PnL is realized plus unrealized profit for the symbol.
func (p *Position) PnL() decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}

// IsFlat reports whether nothing is held.
func (p *Position) IsFlat() bool {
	return p == nil || !p.Quantity.IsPositive()
}

type Config struct {
	AccountID           string        `yaml:"account_id" default:"paper_account_001"`
	InitialCapital      float64       `yaml:"initial_capital" default:"100000" validate:"gt=0"`
	MaxDailyTrades      int           `yaml:"max_daily_trades" default:"2"`
	MaxWeeklyDays       int           `yaml:"max_weekly_days" default:"3"`
	Slippage            float64       `yaml:"slippage" default:"0.001" validate:"gte=0,lt=0.1"`
	CommissionRate      float64       `yaml:"commission_rate" default:"0.0001" validate:"gte=0,lt=0.1"`
	MinTradeNotional    float64       `yaml:"min_trade_notional" default:"100" validate:"gte=0"`
	SnapshotDedupWindow time.Duration `yaml:"snapshot_dedup_window" default:"30s"`
	MaxEquityHistory    int           `yaml:"max_equity_history" default:"20000"`
	MaxTradeHistory     int           `yaml:"max_trade_history" default:"5000"`
}

func (c Config) withDefaults() Config {
	if c.AccountID == "" {
		c.AccountID = "paper_account_001"
	}
	if c.InitialCapital <= 0 {
		c.InitialCapital = 100000
	}
	if c.MaxDailyTrades <= 0 {
		c.MaxDailyTrades = 2
	}
	if c.MaxWeeklyDays <= 0 {
		c.MaxWeeklyDays = 3
	}
	if c.MinTradeNotional <= 0 {
		c.MinTradeNotional = 100
	}
	if c.SnapshotDedupWindow <= 0 {
		c.SnapshotDedupWindow = 30 * time.Second
	}
	if c.MaxEquityHistory <= 0 {
		c.MaxEquityHistory = 20000
	}
	if c.MaxTradeHistory <= 0 {
		c.MaxTradeHistory = 5000
	}
	return c
}

type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithRand sets the slippage source.
func WithRand(r *rand.Rand) Option {
	return func(l *Ledger) {
		l.rnd = r
	}
}

// Ledger is a long-only paper trading account.
type Ledger struct {
	mu  sync.RWMutex
	cfg Config
	now func() time.Time
	rnd *rand.Rand

	initialCapital decimal.Decimal
	cash           decimal.Decimal
	peakValue      decimal.Decimal
	maxDrawdown    float64
	positions      map[string]*Position
	trades         []Order
	equity         []EquitySnapshot
	dailyCounts    map[string]int
	weeklyDays     map[string]map[string][]string
}

func New(cfg Config, opts ...Option) *Ledger {
	cfg = cfg.withDefaults()
	capital := decimal.NewFromFloat(cfg.InitialCapital)
	l := &Ledger{
		cfg:            cfg,
		now:            time.Now,
		rnd:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		initialCapital: capital,
		cash:           capital,
		peakValue:      capital,
		positions:      make(map[string]*Position),
		dailyCounts:    make(map[string]int),
		weeklyDays:     make(map[string]map[string][]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ExecuteDecision converts the decision's target exposure into an order and fills it.
func (l *Ledger) ExecuteDecision(d models.Decision, currentPrice float64) Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) || currentPrice <= 0 {
		return l.reject(d, now, "invalid or missing price")
	}
	if reason, ok := l.checkRules(d.Symbol, now); !ok {
		return l.reject(d, now, reason)
	}

	price := decimal.NewFromFloat(currentPrice)
	pos := l.positions[d.Symbol]
	if pos != nil {
		pos.mark(price, now)
	}

	held := decimal.Zero
	if pos != nil {
		held = pos.Quantity
	}
	current := held.Mul(price)
	desired := l.desiredValue(d, current)
	delta := desired.Sub(current)

	minNotional := decimal.NewFromFloat(l.cfg.MinTradeNotional)
	if delta.Abs().LessThan(minNotional) || delta.IsZero() {
		return l.reject(d, now, "delta below minimum trade notional")
	}

	fill := price.Mul(decimal.NewFromFloat(1 + l.slippage()))
	rate := decimal.NewFromFloat(l.cfg.CommissionRate)
	unitCost := fill.Mul(decimal.NewFromInt(1).Add(rate))

	var side Side
	var qty decimal.Decimal
	if delta.IsPositive() {
		side = SideBuy
		qty = delta.Div(unitCost).Floor()
		affordable := l.cash.Div(unitCost).Floor()
		qty = decimal.Min(qty, affordable)
		if !qty.IsPositive() {
			return l.reject(d, now, "insufficient cash")
		}
	} else {
		side = SideSell
		if desired.IsZero() {
			qty = held
		} else {
			qty = delta.Abs().Div(fill).Floor()
		}
		qty = decimal.Min(qty, held)
		if !qty.IsPositive() {
			return l.reject(d, now, "insufficient quantity")
		}
	}
	notional := qty.Mul(fill)
	if notional.LessThan(minNotional) {
		return l.reject(d, now, "delta below minimum trade notional")
	}
	commission := notional.Mul(rate)

	if pos == nil {
		pos = &Position{Symbol: d.Symbol}
		l.positions[d.Symbol] = pos
	}
	switch side {
	case SideBuy:
		cost := pos.AvgCost.Mul(pos.Quantity).Add(notional)
		pos.Quantity = pos.Quantity.Add(qty)
		pos.AvgCost = cost.Div(pos.Quantity)
		l.cash = l.cash.Sub(notional).Sub(commission)
	case SideSell:
		pos.RealizedPnL = pos.RealizedPnL.Add(fill.Sub(pos.AvgCost).Mul(qty)).Sub(commission)
		pos.Quantity = pos.Quantity.Sub(qty)
		if !pos.Quantity.IsPositive() {
			pos.Quantity = decimal.Zero
			pos.AvgCost = decimal.Zero
		}
		l.cash = l.cash.Add(notional).Sub(commission)
	}
	pos.mark(price, now)

	l.countTrade(d.Symbol, now)
	l.updateDrawdown()

	order := Order{
		ID:             uuid.NewString(),
		DecisionID:     d.ID,
		Symbol:         d.Symbol,
		Side:           side,
		Direction:      string(d.Direction),
		Status:         OrderFilled,
		Quantity:       qty,
		RequestedPrice: price,
		FilledPrice:    fill,
		Commission:     commission,
		CreatedAt:      now,
	}
	l.appendTrade(order)
	l.recordSnapshot(now, "trade")
	return order
}

// desiredValue maps a decision onto a long-only dollar position.
// LONG sizes to target×total value and a negative target means flat.
// SHORT sheds |target|×total value, FLAT exits.
func (l *Ledger) desiredValue(d models.Decision, current decimal.Decimal) decimal.Decimal {
	total := l.totalValue()
	clip := func(v float64) decimal.Decimal {
		return total.Mul(decimal.NewFromFloat(math.Min(v, 1)))
	}
	switch d.Direction {
	case models.DirectionLong:
		return clip(math.Max(d.TargetPosition, 0))
	case models.DirectionShort:
		out := current.Sub(clip(math.Abs(d.TargetPosition)))
		if out.IsNegative() {
			return decimal.Zero
		}
		return out
	default:
		return decimal.Zero
	}
}

func (l *Ledger) slippage() float64 {
	if l.cfg.Slippage <= 0 {
		return 0
	}
	return (l.rnd.Float64()*2 - 1) * l.cfg.Slippage
}

func (l *Ledger) reject(d models.Decision, now time.Time, reason string) Order {
	o := Order{
		ID:         uuid.NewString(),
		DecisionID: d.ID,
		Symbol:     d.Symbol,
		Direction:  string(d.Direction),
		Status:     OrderRejected,
		Reason:     reason,
		CreatedAt:  now,
	}
	l.appendTrade(o)
	return o
}

func (l *Ledger) appendTrade(o Order) {
	l.trades = append(l.trades, o)
	if extra := len(l.trades) - l.cfg.MaxTradeHistory; extra > 0 {
		l.trades = append([]Order(nil), l.trades[extra:]...)
	}
}

// MarkToMarket revalues the symbol's position at price.
func (l *Ledger) MarkToMarket(symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return
	}
	pos.mark(decimal.NewFromFloat(price), l.now())
	l.updateDrawdown()
}

func (l *Ledger) totalValue() decimal.Decimal {
	total := l.cash
	for _, p := range l.positions {
		total = total.Add(p.MarketValue)
	}
	return total
}

func (l *Ledger) updateDrawdown() {
	value := l.totalValue()
	if value.GreaterThan(l.peakValue) {
		l.peakValue = value
	}
	if !l.peakValue.IsPositive() {
		return
	}
	dd := l.peakValue.Sub(value).Div(l.peakValue).InexactFloat64()
	if dd > l.maxDrawdown {
		l.maxDrawdown = dd
	}
}
