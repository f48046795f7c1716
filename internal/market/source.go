// Package market resolves quotes and flow estimates through a chain of
// sources with a last-good fallback per symbol.
package market

import (
	"context"
	"errors"
	"math"

	"TradeDesk/internal/domain/models"
)

var (
	ErrNoQuote        = errors.New("market: quote unavailable")
	ErrInvalidQuote   = errors.New("market: invalid quote")
	ErrSourceDisabled = errors.New("market: source disabled")
)

// Source fetches one raw quote. Implementations fill what they know and
// leave the rest zero; Derive completes the snapshot.
type Source interface {
	Name() string
	Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

// Derive fills the synthetic book and VWAP when the source did not report them.
func Derive(q models.MarketSnapshot) models.MarketSnapshot {
	p := q.Price
	if q.Open <= 0 {
		q.Open = p
	}
	if q.High <= 0 {
		q.High = math.Max(p, q.Open)
	}
	if q.Low <= 0 {
		q.Low = math.Min(p, q.Open)
	}
	if q.VWAP <= 0 {
		q.VWAP = (q.Open + q.High + q.Low + p) / 4
	}
	if q.Bid <= 0 || q.Ask <= 0 {
		q.Bid = p * (1 - 0.001)
		q.Ask = p * (1 + 0.001)
	}
	size := math.Max(8000, q.Volume*0.002)
	if q.BidSize <= 0 {
		q.BidSize = size
	}
	if q.AskSize <= 0 {
		q.AskSize = size
	}
	if q.ChangePercent == 0 && q.PrevClose > 0 {
		q.ChangePercent = (p - q.PrevClose) / q.PrevClose * 100
	}
	if q.AvgVolume <= 0 {
		q.AvgVolume = q.Volume
	}
	return q
}

// EstimateFlow is the flow fallback used when no trade tape covers the symbol.
// prev is the last observed price (0 when unknown).
func EstimateFlow(q models.MarketSnapshot, prev float64) models.FlowSnapshot {
	adv := q.AvgVolume
	if adv <= 0 {
		adv = q.Volume
	}
	advDollar := adv * q.Price
	delta := 0.0
	if prev > 0 {
		delta = q.Price - prev
	}
	block := delta * adv * 0.08
	return models.FlowSnapshot{
		Symbol:             q.Symbol,
		LargeOrderNetValue: block,
		DarkPoolNet:        block * 0.15,
		OptionsNotional:    math.Abs(q.ChangePercent) / 100 * advDollar * 0.5 * 0.12,
		AverageDailyVolume: math.Max(advDollar, 1),
		Timestamp:          q.Timestamp,
	}
}

func validate(q models.MarketSnapshot) error {
	if q.Price <= 0 || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return ErrInvalidQuote
	}
	return nil
}
