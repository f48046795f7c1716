package market

import (
	"context"
	"encoding/json"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/cache"
	"TradeDesk/pkg/logger"
)

// Quotes live twice: a TTL entry in the cache service (memory, or Redis
// behind a memory layer) and a last-good record per symbol that survives
// restarts through the desk snapshot.

func quoteKey(symbol string) string { return cache.GenerateKey("quote", symbol) }

func (s *Service) ExportCache() map[string]models.QuoteMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.QuoteMeta, len(s.lastGood))
	for k, v := range s.lastGood {
		out[k] = v
	}
	return out
}

func (s *Service) RestoreCache(m map[string]models.QuoteMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGood = make(map[string]models.QuoteMeta, len(m))
	for k, v := range m {
		if v.Price > 0 {
			s.lastGood[k] = v
		}
	}
}

func (s *Service) cached(ctx context.Context, symbol string) (models.MarketSnapshot, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return models.MarketSnapshot{}, false
	}
	var raw string
	if err := s.cache.Get(ctx, quoteKey(symbol), &raw); err != nil {
		return models.MarketSnapshot{}, false
	}
	var q models.MarketSnapshot
	if err := json.Unmarshal([]byte(raw), &q); err != nil || q.Price <= 0 {
		return models.MarketSnapshot{}, false
	}
	return q, true
}

func (s *Service) remember(ctx context.Context, q models.MarketSnapshot) {
	s.mu.Lock()
	s.lastGood[q.Symbol] = models.QuoteMeta{
		Price:         q.Price,
		ChangePercent: q.ChangePercent,
		AvgVolume:     q.AvgVolume,
		ShortName:     q.ShortName,
		Source:        q.Source,
		UpdatedAt:     q.Timestamp,
	}
	s.mu.Unlock()

	if s.cache == nil || s.ttl <= 0 {
		return
	}
	b, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, quoteKey(q.Symbol), string(b), s.ttl); err != nil {
		s.lgr.Warn("market: cache set failed", logger.String("symbol", q.Symbol), logger.Error(err))
	}
}

func (s *Service) fallback(symbol string) (models.MarketSnapshot, bool) {
	s.mu.Lock()
	meta, ok := s.lastGood[symbol]
	s.mu.Unlock()
	if !ok || meta.Price <= 0 {
		return models.MarketSnapshot{}, false
	}
	p := meta.Price
	vol := meta.AvgVolume
	if vol <= 0 {
		vol = 1_000_000
	}
	return models.MarketSnapshot{
		Symbol:        symbol,
		Price:         p,
		Open:          p,
		High:          p,
		Low:           p,
		Volume:        vol,
		VWAP:          p,
		Bid:           p * 0.9995,
		Ask:           p * 1.0005,
		BidSize:       12000,
		AskSize:       12000,
		ChangePercent: meta.ChangePercent,
		AvgVolume:     meta.AvgVolume,
		ShortName:     meta.ShortName,
		Source:        SourceCachedFallback,
		Timestamp:     s.now(),
	}, true
}
