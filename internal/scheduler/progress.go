package scheduler

import (
	"maps"
	"time"

	"TradeDesk/internal/domain/models"
)

const waitingNote = "Waiting for next analysis cycle"

// SelectionPanel is the display state of the selection job.
type SelectionPanel struct {
	Status    models.StageStatus `json:"status"`
	Progress  int                `json:"progress"`
	Message   string             `json:"message"`
	Source    string             `json:"source,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// progressState is the per-StageKey display state. Guarded by Service.mu.
type progressState struct {
	Global    map[models.StageName]models.StageProgress            `json:"global"`
	Symbols   map[string]map[models.StageName]models.StageProgress `json:"stocks"`
	Selection SelectionPanel                                       `json:"selection"`
}

func newProgressState() progressState {
	return progressState{
		Global:    make(map[models.StageName]models.StageProgress),
		Symbols:   make(map[string]map[models.StageName]models.StageProgress),
		Selection: SelectionPanel{Status: models.StatusPending},
	}
}

func (p *progressState) status(key models.StageKey) models.StageStatus {
	stage, symbol := key.Split()
	if symbol == "" {
		return p.Global[stage].Status
	}
	return p.Symbols[symbol][stage].Status
}

func (p *progressState) set(key models.StageKey, status models.StageStatus, msg string, now time.Time) {
	stage, symbol := key.Split()
	sp := models.StageProgress{Status: status, Message: msg, UpdatedAt: now}
	if symbol == "" {
		p.Global[stage] = sp
		return
	}
	m, ok := p.Symbols[symbol]
	if !ok {
		m = make(map[models.StageName]models.StageProgress)
		p.Symbols[symbol] = m
	}
	m[stage] = sp
}

// initSymbol seeds every per-symbol stage as pending.
func (p *progressState) initSymbol(symbol string, now time.Time) {
	m := make(map[models.StageName]models.StageProgress, len(models.SymbolStages)+2)
	m[models.StageMacro] = models.StageProgress{Status: models.StatusPending, Message: waitingNote, UpdatedAt: now}
	m[models.StageQuant] = models.StageProgress{Status: models.StatusPending, Message: waitingNote, UpdatedAt: now}
	for _, st := range models.SymbolStages {
		m[st] = models.StageProgress{Status: models.StatusPending, Message: waitingNote, UpdatedAt: now}
	}
	p.Symbols[symbol] = m
}

// resetCycle returns completed and skipped stages of symbol to pending.
// Failed stages keep their status so they stay due.
func (p *progressState) resetCycle(symbol string, now time.Time) {
	for stage, sp := range p.Symbols[symbol] {
		if sp.Status == models.StatusFailed || sp.Status == models.StatusRunning {
			continue
		}
		p.Symbols[symbol][stage] = models.StageProgress{Status: models.StatusPending, Message: waitingNote, UpdatedAt: now}
	}
}

func (p *progressState) clone() progressState {
	out := progressState{
		Global:    maps.Clone(p.Global),
		Symbols:   make(map[string]map[models.StageName]models.StageProgress, len(p.Symbols)),
		Selection: p.Selection,
	}
	for k, v := range p.Symbols {
		out.Symbols[k] = maps.Clone(v)
	}
	return out
}

// Progress is the observability view of the scheduler.
type Progress struct {
	Running   bool                                                 `json:"running"`
	Active    []string                                             `json:"active_stocks"`
	Global    map[models.StageName]models.StageProgress            `json:"global"`
	Symbols   map[string]map[models.StageName]models.StageProgress `json:"stocks"`
	Selection SelectionPanel                                       `json:"selection"`
	NextRuns  map[models.StageKey]models.NextRun                   `json:"next_runs"`
}

// Progress returns stage statuses and the schedule of every StageKey.
func (s *Service) Progress() Progress {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.progress.clone()
	return Progress{
		Running:   s.running.Load(),
		Active:    append([]string{}, s.active...),
		Global:    ps.Global,
		Symbols:   ps.Symbols,
		Selection: ps.Selection,
		NextRuns:  s.nextRunsLocked(now),
	}
}

func (s *Service) nextRunsLocked(now time.Time) map[models.StageKey]models.NextRun {
	keys := []models.StageKey{models.GlobalKey(models.StageMacro), models.GlobalKey(models.StageQuant)}
	for _, sym := range s.active {
		for _, st := range models.SymbolStages {
			keys = append(keys, models.SymbolKey(st, sym))
		}
	}

	out := make(map[models.StageKey]models.NextRun, len(keys))
	for _, key := range keys {
		stage, _ := key.Split()
		interval := s.cfg.Intervals.For(stage)
		last, ok := s.lastRun[key]
		if !ok {
			out[key] = models.NextRun{DueNow: true}
			continue
		}
		lr := last
		next := last.Add(interval)
		left := int(next.Sub(now).Seconds())
		if left < 0 {
			left = 0
		}
		due := s.isDueLocked(key, now, interval)
		if due {
			left = 0
		}
		out[key] = models.NextRun{LastRun: &lr, NextRun: &next, SecondsLeft: left, DueNow: due}
	}
	return out
}

func (s *Service) setStage(key models.StageKey, status models.StageStatus, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStageLocked(key, status, msg)
}

// setStageLocked ignores symbol keys whose symbol left the pool.
func (s *Service) setStageLocked(key models.StageKey, status models.StageStatus, msg string) {
	if _, symbol := key.Split(); symbol != "" {
		if _, ok := s.cases[symbol]; !ok {
			return
		}
	}
	s.progress.set(key, status, msg, s.now())
}

func (s *Service) setSelection(status models.StageStatus, progress int, msg, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Selection = SelectionPanel{
		Status:    status,
		Progress:  progress,
		Message:   msg,
		Source:    source,
		UpdatedAt: s.now(),
	}
}
