package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/logger"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// NormalizeSymbol upper-cases and validates a ticker.
func NormalizeSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" {
		return "", fmt.Errorf("%w: symbol is empty", ErrInvalidSymbol)
	}
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return sym, nil
}

// Active returns the symbol pool in insertion order.
func (s *Service) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.active...)
}

func (s *Service) isActive(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cases[symbol]
	return ok
}

// AddSymbol puts a symbol in the pool and creates its case. Adding an
// active symbol is a no-op that reports false.
func (s *Service) AddSymbol(ctx context.Context, raw string) (bool, error) {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if _, ok := s.cases[sym]; ok {
		s.mu.Unlock()
		return false, nil
	}
	now := s.now()
	s.active = append(s.active, sym)
	s.cases[sym] = models.NewCase(sym, now)
	s.progress.initSymbol(sym, now)
	if macro, ok := s.latestMacroLocked(); ok {
		macro.Symbol = sym
		s.cases[sym].Conclusions[models.StageMacro] = macro
	}
	s.recommendations = s.recommendations.Without(sym)
	s.mu.Unlock()

	if s.market != nil {
		s.market.Track(sym)
	}
	s.lgr.Info("symbol added", logger.String("symbol", sym))
	s.persist(ctx)
	return true, nil
}

// latestMacroLocked returns the macro conclusion held by any case.
func (s *Service) latestMacroLocked() (models.Conclusion, bool) {
	for _, c := range s.cases {
		if con, ok := c.Conclusions[models.StageMacro]; ok {
			return con, true
		}
	}
	return models.Conclusion{}, false
}

// RemoveSymbol drops a symbol and every piece of state derived from it.
func (s *Service) RemoveSymbol(ctx context.Context, raw string) error {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.cases[sym]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSymbolNotActive, sym)
	}
	kept := s.active[:0:0]
	for _, a := range s.active {
		if a != sym {
			kept = append(kept, a)
		}
	}
	s.active = kept
	s.purgeSymbolLocked(sym)
	s.mu.Unlock()

	s.forgetSymbol(ctx, sym)
	s.lgr.Info("symbol removed", logger.String("symbol", sym))
	s.persist(ctx)
	return nil
}

// purgeSymbolLocked clears the scheduler-owned state of sym.
func (s *Service) purgeSymbolLocked(sym string) {
	delete(s.cases, sym)
	delete(s.cooldowns, sym)
	delete(s.progress.Symbols, sym)
	for key := range s.lastRun {
		if _, ks := key.Split(); ks == sym {
			delete(s.lastRun, key)
		}
	}
	s.recommendations = s.recommendations.Without(sym)
	for i, run := range s.history {
		kept := run[:0:0]
		for _, h := range run {
			if h != sym {
				kept = append(kept, h)
			}
		}
		s.history[i] = kept
	}
	inbox := s.inbox[:0:0]
	for _, ev := range s.inbox {
		if ev.Broadcast || ev.Symbol != sym {
			inbox = append(inbox, ev)
		}
	}
	s.inbox = inbox
}

// forgetSymbol clears the collaborator-owned state of sym.
func (s *Service) forgetSymbol(ctx context.Context, sym string) {
	if s.market != nil {
		s.market.Forget(ctx, sym)
	}
	_, engine := s.components()
	engine.Forget(sym)
	if s.memory != nil {
		if n := s.memory.RemoveSymbol(sym); n > 0 {
			s.lgr.Debug("memory entries removed", logger.String("symbol", sym), logger.Int("count", n))
		}
		s.metrics.SetMemoryEntries(s.memory.Len())
	}
}
