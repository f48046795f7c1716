package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/cache"
	"TradeDesk/pkg/logger"
)

const SourceCachedFallback = "cached_fallback"

type Config struct {
	Providers []string      `yaml:"providers"`
	QuoteTTL  time.Duration `yaml:"quote_ttl" default:"60s"`
	StooqURL  string        `yaml:"stooq_url" default:"https://stooq.com"`
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
	Finnhub   TapeConfig    `yaml:"finnhub"`
}

// BuildSources maps provider names to sources, in order.
func BuildSources(cfg Config) ([]Source, error) {
	names := cfg.Providers
	if len(names) == 0 {
		names = []string{"yahoo", "stooq"}
	}
	out := make([]Source, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "yahoo":
			out = append(out, NewYahoo())
		case "stooq":
			out = append(out, NewStooq(cfg.StooqURL, cfg.Timeout))
		default:
			return nil, fmt.Errorf("market: unknown provider %q", n)
		}
	}
	return out, nil
}

// Service chains sources behind a TTL cache and remembers the last good
// quote per symbol.
type Service struct {
	sources []Source
	cache   cache.Service
	tape    *Tape
	ttl     time.Duration
	lgr     *logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	lastGood  map[string]models.QuoteMeta
	lastPrice map[string]float64
}

func NewService(sources []Source, c cache.Service, tape *Tape, ttl time.Duration, lgr *logger.Logger) *Service {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &Service{
		sources:   sources,
		cache:     c,
		tape:      tape,
		ttl:       ttl,
		lgr:       lgr,
		now:       time.Now,
		lastGood:  make(map[string]models.QuoteMeta),
		lastPrice: make(map[string]float64),
	}
}

// Quote returns the freshest quote for symbol: cache, then each source in
// order, then the last good quote.
func (s *Service) Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if q, ok := s.cached(ctx, symbol); ok {
		return q, nil
	}

	var errs []error
	for _, src := range s.sources {
		q, err := src.Quote(ctx, symbol)
		if err == nil {
			err = validate(q)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		q.Symbol = symbol
		if q.Timestamp.IsZero() {
			q.Timestamp = s.now()
		}
		q = Derive(q)
		s.remember(ctx, q)
		return q, nil
	}

	if q, ok := s.fallback(symbol); ok {
		s.lgr.Warn("market: using last good quote",
			logger.String("symbol", symbol), logger.Error(errors.Join(errs...)))
		return q, nil
	}
	return models.MarketSnapshot{}, fmt.Errorf("%w: %s: %v", ErrNoQuote, symbol, errors.Join(errs...))
}

// Snapshot returns the quote and a flow estimate. Live tape prints win over
// the quote-derived estimate.
func (s *Service) Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, models.FlowSnapshot, error) {
	q, err := s.Quote(ctx, symbol)
	if err != nil {
		return models.MarketSnapshot{}, models.FlowSnapshot{}, err
	}

	s.mu.Lock()
	prev := s.lastPrice[q.Symbol]
	s.lastPrice[q.Symbol] = q.Price
	s.mu.Unlock()

	if q.Source == SourceCachedFallback {
		return q, models.FlowSnapshot{
			Symbol:             q.Symbol,
			AverageDailyVolume: math.Max(q.Volume, 1),
			Timestamp:          q.Timestamp,
		}, nil
	}
	if s.tape != nil {
		if lq, flow, ok := s.tape.Overlay(q); ok {
			return lq, flow, nil
		}
	}
	return q, EstimateFlow(q, prev), nil
}

// Track subscribes symbol on the live tape.
func (s *Service) Track(symbol string) {
	if s.tape != nil {
		s.tape.Subscribe(symbol)
	}
}

// Forget drops every cached datum of symbol.
func (s *Service) Forget(ctx context.Context, symbol string) {
	s.mu.Lock()
	delete(s.lastGood, symbol)
	delete(s.lastPrice, symbol)
	s.mu.Unlock()
	if s.cache != nil {
		_ = s.cache.Delete(ctx, quoteKey(symbol))
	}
	if s.tape != nil {
		s.tape.Unsubscribe(symbol)
	}
}

// Retain forgets every symbol outside active.
func (s *Service) Retain(ctx context.Context, active map[string]bool) {
	s.mu.Lock()
	var drop []string
	for sym := range s.lastGood {
		if !active[sym] {
			drop = append(drop, sym)
		}
	}
	for sym := range s.lastPrice {
		if !active[sym] {
			drop = append(drop, sym)
		}
	}
	s.mu.Unlock()
	for _, sym := range drop {
		s.Forget(ctx, sym)
	}
}
