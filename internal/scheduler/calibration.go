package scheduler

import (
	"context"
	"fmt"
	"time"

	"TradeDesk/internal/calibration"
	"TradeDesk/internal/evaluator"
	"TradeDesk/pkg/logger"
)

// Train refits the calibration engine from the ledger's realised outcomes.
func (s *Service) Train(ctx context.Context) calibration.Report {
	_, engine := s.components()
	rep := engine.Refit(s.runtimeStats())
	s.metrics.RecordRefit(rep.Training.Mode)

	s.mu.Lock()
	s.lastRefit = s.now()
	s.mu.Unlock()

	s.lgr.Info("calibration refit",
		logger.String("mode", rep.Training.Mode),
		logger.Int("samples", rep.Training.SampleCount),
		logger.String("summary", rep.Summary))
	s.persist(ctx)
	return rep
}

// CalibrationReport returns the last refit report.
func (s *Service) CalibrationReport() (calibration.Report, bool) {
	_, engine := s.components()
	return engine.LastReport()
}

func (s *Service) maybeRefit(ctx context.Context, now time.Time) {
	if s.cfg.RefitInterval <= 0 {
		return
	}
	s.mu.Lock()
	due := now.Sub(s.lastRefit) >= s.cfg.RefitInterval
	s.mu.Unlock()
	if due {
		s.Train(ctx)
	}
}

func (s *Service) runtimeStats() calibration.RuntimeStats {
	stats := calibration.RuntimeStats{LatestQuotes: make(map[string]float64)}
	s.mu.Lock()
	for sym, c := range s.cases {
		if c.LatestPrice > 0 {
			stats.LatestQuotes[sym] = c.LatestPrice
		}
	}
	s.mu.Unlock()
	if s.ledger == nil {
		return stats
	}

	sum := s.ledger.AccountSummary()
	stats.TradeCount = sum.TradeCount
	stats.TotalPnL = sum.TotalPnL.InexactFloat64()
	stats.MaxDrawdown = sum.MaxDrawdown
	for _, p := range s.ledger.Positions() {
		stats.Positions = append(stats.Positions, calibration.OpenPosition{
			Symbol:    p.Symbol,
			Quantity:  p.Quantity.InexactFloat64(),
			AvgCost:   p.AvgCost.InexactFloat64(),
			MarkPrice: p.MarkPrice.InexactFloat64(),
		})
	}
	return stats
}

// Reload rebuilds the evaluators and the calibration engine from config.
// Pending samples, price and return windows, training samples and the
// evidence inbox carry over.
func (s *Service) Reload(_ context.Context, cfg evaluator.Config) error {
	if s.registry == nil {
		return fmt.Errorf("reload: evaluator registry %w", ErrNotConfigured)
	}
	set, err := s.registry.Build(cfg, s.lgr)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	fresh := calibration.NewEngine(s.engineCfg)

	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	s.compMu.Lock()
	calibration.Transfer(s.engine, fresh)
	s.evaluators = set
	s.evalCfg = cfg
	s.engine = fresh
	s.compMu.Unlock()

	s.lgr.Info("components reloaded",
		logger.String("default_provider", cfg.Default),
		logger.Int("samples", fresh.SampleCount()))
	return nil
}
