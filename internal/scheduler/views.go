package scheduler

import (
	"context"
	"fmt"

	"TradeDesk/internal/domain/models"
)

// Status is the short health view of the desk.
type Status struct {
	Running       bool     `json:"running"`
	Active        []string `json:"active_stocks"`
	RunningJobs   int      `json:"running_jobs"`
	InboxSize     int      `json:"inbox_size"`
	MemoryEntries int      `json:"memory_entries"`
	SampleCount   int      `json:"calibration_samples"`
	Recommended   int      `json:"recommendations"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:     s.running.Load(),
		Active:      append([]string{}, s.active...),
		InboxSize:   len(s.inbox),
		Recommended: s.recommendations.Prune(s.activeSetLocked()).Count(),
	}
	for _, j := range s.jobs {
		if j.Status == models.JobRunning {
			st.RunningJobs++
		}
	}
	s.mu.Unlock()

	if s.memory != nil {
		st.MemoryEntries = s.memory.Len()
	}
	_, engine := s.components()
	st.SampleCount = engine.SampleCount()
	return st
}

// Analysis returns a copy of every case.
func (s *Service) Analysis() map[string]*models.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.Case, len(s.cases))
	for k, c := range s.cases {
		out[k] = c.Lite()
	}
	return out
}

// AnalysisFor returns the case of one symbol.
func (s *Service) AnalysisFor(raw string) (*models.Case, error) {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[sym]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotActive, sym)
	}
	return c.Lite(), nil
}

// Recommendations returns the pool, pruned of duplicates and active symbols.
func (s *Service) Recommendations() models.RecommendationPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations = s.recommendations.Prune(s.activeSetLocked())
	out := models.NewRecommendationPool()
	for h, items := range s.recommendations {
		out[h] = append(out[h], items...)
	}
	return out
}

// SelectRecommendation moves a recommended symbol into the pool.
func (s *Service) SelectRecommendation(ctx context.Context, raw string) error {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	found := s.recommendations.Contains(sym)
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrRecommendationNotFound, sym)
	}
	_, err = s.AddSymbol(ctx, sym)
	return err
}
