package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"

	"github.com/go-resty/resty/v2"
)

// Stooq reads the daily quote CSV from stooq.com.
type Stooq struct {
	client *resty.Client
	suffix string
	now    func() time.Time
}

func NewStooq(baseURL string, timeout time.Duration) *Stooq {
	if baseURL == "" {
		baseURL = "https://stooq.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &Stooq{client: client, suffix: ".us", now: time.Now}
}

func (s *Stooq) Name() string { return "stooq" }

func (s *Stooq) Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"s": strings.ToLower(symbol) + s.suffix,
			"f": "sd2t2ohlcv",
			"h": "",
			"e": "csv",
		}).
		Get("/q/l/")
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("stooq quote %s: %w", symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return models.MarketSnapshot{}, fmt.Errorf("stooq quote %s: status %d", symbol, resp.StatusCode())
	}
	return s.parse(symbol, resp.String())
}

// parse reads "Symbol,Date,Time,Open,High,Low,Close,Volume" with one data row.
func (s *Stooq) parse(symbol, body string) (models.MarketSnapshot, error) {
	rows, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("stooq parse %s: %w", symbol, err)
	}
	if len(rows) < 2 || len(rows[1]) < 8 {
		return models.MarketSnapshot{}, fmt.Errorf("stooq parse %s: %w", symbol, ErrNoQuote)
	}
	row := rows[1]
	num := func(i int) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return 0
		}
		return v
	}
	snap := models.MarketSnapshot{
		Symbol:    symbol,
		Open:      num(3),
		High:      num(4),
		Low:       num(5),
		Price:     num(6),
		Volume:    num(7),
		Source:    s.Name(),
		Timestamp: s.now(),
	}
	if snap.Price <= 0 {
		return models.MarketSnapshot{}, fmt.Errorf("stooq parse %s: %w", symbol, ErrInvalidQuote)
	}
	if snap.Open > 0 {
		snap.ChangePercent = (snap.Price - snap.Open) / snap.Open * 100
	}
	return snap, nil
}
