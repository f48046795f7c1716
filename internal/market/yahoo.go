package market

import (
	"context"
	"fmt"
	"time"

	"TradeDesk/internal/domain/models"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
)

// Yahoo reads quotes through finance-go.
type Yahoo struct {
	get func(symbol string) (*finance.Quote, error)
	now func() time.Time
}

func NewYahoo() *Yahoo {
	return &Yahoo{get: quote.Get, now: time.Now}
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	type result struct {
		q   *finance.Quote
		err error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := y.get(symbol)
		ch <- result{q, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return models.MarketSnapshot{}, ctx.Err()
	case r = <-ch:
	}
	if r.err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("yahoo quote %s: %w", symbol, r.err)
	}
	if r.q == nil {
		return models.MarketSnapshot{}, fmt.Errorf("yahoo quote %s: %w", symbol, ErrNoQuote)
	}
	q := r.q
	return models.MarketSnapshot{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		Open:          q.RegularMarketOpen,
		High:          q.RegularMarketDayHigh,
		Low:           q.RegularMarketDayLow,
		Volume:        float64(q.RegularMarketVolume),
		Bid:           q.Bid,
		Ask:           q.Ask,
		BidSize:       float64(q.BidSize),
		AskSize:       float64(q.AskSize),
		ChangePercent: q.RegularMarketChangePercent,
		PrevClose:     q.RegularMarketPreviousClose,
		AvgVolume:     float64(q.AverageDailyVolume3Month),
		ShortName:     q.ShortName,
		Source:        y.Name(),
		Timestamp:     y.now(),
	}, nil
}
