package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/selection"
	"TradeDesk/pkg/logger"

	"github.com/google/uuid"
)

const maxJobErrors = 6

// RunOnce starts a full analysis cycle as a tracked job. A run-once job
// already in flight is returned instead of starting another.
func (s *Service) RunOnce(ctx context.Context) (string, error) {
	id, fresh := s.startJob(models.JobRunOnce)
	if fresh {
		s.goJob(ctx, func(ctx context.Context) { s.runOnceJob(ctx, id) })
	}
	return id, nil
}

// RunSelection starts a candidate selection job.
func (s *Service) RunSelection(ctx context.Context) (string, error) {
	if s.selector == nil {
		return "", fmt.Errorf("selection: %w", ErrNotConfigured)
	}
	id, fresh := s.startJob(models.JobRunSelection)
	if fresh {
		s.goJob(ctx, func(ctx context.Context) { s.runSelectionJob(ctx, id) })
	}
	return id, nil
}

// goJob detaches the job from the request context.
func (s *Service) goJob(ctx context.Context, fn func(context.Context)) {
	jctx := context.WithoutCancel(ctx)
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn(jctx)
	}()
}

// Jobs lists the job registry, newest first.
func (s *Service) Jobs() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

func (s *Service) Job(id string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return *j, nil
}

func (s *Service) startJob(typ models.JobType) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.Type == typ && j.Status == models.JobRunning {
			return id, false
		}
	}
	id := uuid.NewString()
	s.jobs[id] = &models.Job{
		ID:        id,
		Type:      typ,
		Status:    models.JobRunning,
		Stage:     "queued",
		StartedAt: s.now(),
	}
	return id, true
}

func (s *Service) updateJob(id string, progress int, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Progress = progress
		j.Stage = stage
	}
}

func (s *Service) finishJob(ctx context.Context, id string, status models.JobStatus, msg string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		now := s.now()
		j.Status = status
		j.Message = msg
		j.FinishedAt = &now
		if status == models.JobCompleted {
			j.Progress = 100
			j.Stage = "completed"
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.lgr.Info("job finished",
		logger.String("job_id", id),
		logger.String("type", string(j.Type)),
		logger.String("status", string(status)),
		logger.String("message", msg))
	s.notify(ctx, "job", fmt.Sprintf("%s %s: %s", j.Type, status, msg))
	s.persist(ctx)
}

// runOnceJob runs macro, quant for all symbols, then the remaining
// per-symbol stages in order.
func (s *Service) runOnceJob(ctx context.Context, id string) {
	symbols := s.Active()
	if len(symbols) == 0 {
		s.finishJob(ctx, id, models.JobCompleted, "No active stocks")
		return
	}

	var errs []string
	s.updateJob(id, 5, string(models.StageMacro))
	if err := s.RunStage(ctx, models.StageMacro, ""); err != nil {
		errs = append(errs, fmt.Sprintf("%s:%v", models.StageMacro, err))
	}

	s.updateJob(id, 20, string(models.StageQuant))
	if err := s.RunQuantAll(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("%s:%v", models.StageQuant, err))
	}

	total := len(symbols) * len(models.SymbolStages)
	done := 0
	for _, sym := range symbols {
		for _, stage := range models.SymbolStages {
			label := fmt.Sprintf("%s_%s", stage, sym)
			s.updateJob(id, 20+75*done/total, label)
			if err := s.RunStage(ctx, stage, sym); err != nil {
				errs = append(errs, fmt.Sprintf("%s:%v", label, err))
			}
			done++
		}
	}

	if len(errs) > 0 {
		if len(errs) > maxJobErrors {
			errs = errs[:maxJobErrors]
		}
		s.finishJob(ctx, id, models.JobFailed, strings.Join(errs, "; "))
		return
	}
	s.finishJob(ctx, id, models.JobCompleted, fmt.Sprintf("Run once completed for %d stocks", len(symbols)))
}

func (s *Service) runSelectionJob(ctx context.Context, id string) {
	key := models.GlobalKey(models.StageSelection)
	started := s.now()
	s.updateJob(id, 10, "collecting")
	s.setSelection(models.StatusRunning, 10, "collecting candidates", "")

	res, err := s.selector.Select(ctx, s.themeText(), func(done, total int, symbol string) {
		if total <= 0 {
			return
		}
		p := 45 + 40*done/total
		s.updateJob(id, p, "scoring")
		s.setSelection(models.StatusRunning, p, "scoring "+symbol, "")
	})
	if err != nil {
		s.setSelection(models.StatusFailed, 0, err.Error(), "")
		s.metrics.RecordStageRun(string(models.StageSelection), string(models.StatusFailed), s.now().Sub(started).Seconds())
		s.finishJob(ctx, id, models.JobFailed, err.Error())
		return
	}

	s.updateJob(id, 75, "grouping")
	s.setSelection(models.StatusRunning, 75, "grouping", res.Source)

	s.mu.Lock()
	active := s.activeSetLocked()
	recent := make(map[string]bool)
	from := max(0, len(s.history)-s.cfg.RecentRuns)
	for _, run := range s.history[from:] {
		for _, sym := range run {
			recent[sym] = true
		}
	}
	s.mu.Unlock()

	picks := selection.Pick(res.Candidates, active, recent, selection.DefaultQuotas(), s.cfg.SelectionTotal)
	pool := selection.Group(picks).Prune(active)
	syms := selection.Symbols(picks)

	s.mu.Lock()
	s.recommendations = pool
	s.history = append(s.history, syms)
	if extra := len(s.history) - s.cfg.HistoryRuns; extra > 0 {
		s.history = append([][]string(nil), s.history[extra:]...)
	}
	s.lastRun[key] = s.now()
	s.mu.Unlock()

	if s.memory != nil {
		text, meta := selection.MemoryNote(res.Source, picks)
		s.memory.Write(string(models.StageSelection), "", text, meta)
		s.metrics.SetMemoryEntries(s.memory.Len())
	}

	msg := fmt.Sprintf("selection completed (%s): %s", res.Source, strings.Join(syms, ", "))
	s.setSelection(models.StatusCompleted, 100, msg, res.Source)
	s.metrics.RecordStageRun(string(models.StageSelection), string(models.StatusCompleted), s.now().Sub(started).Seconds())
	s.finishJob(ctx, id, models.JobCompleted, msg)
}

// themeText is the macro context handed to the selector.
func (s *Service) themeText() string {
	var parts []string
	s.mu.Lock()
	if macro, ok := s.latestMacroLocked(); ok {
		parts = append(parts, macro.Thesis)
	}
	s.mu.Unlock()
	if s.memory != nil {
		parts = append(parts, s.memory.Summary(string(models.StageMacro), "", "theme sector macro", 3))
	}
	return strings.Join(parts, "\n")
}
