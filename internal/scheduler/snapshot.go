package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/memory"
	"TradeDesk/pkg/logger"
)

const (
	SnapshotVersion = 2

	interruptedNote = "Interrupted by restart"
)

// Snapshot is the persisted desk. Cases keep only their lite form.
type Snapshot struct {
	Version     int                         `json:"version"`
	SavedAt     time.Time                   `json:"saved_at"`
	State       State                       `json:"state"`
	Cases       map[string]*models.Case     `json:"cases"`
	Trading     *ledger.State               `json:"trading,omitempty"`
	Accounts    []ledger.AccountState       `json:"user_accounts,omitempty"`
	Memory      []memory.Entry              `json:"memory"`
	MarketCache map[string]models.QuoteMeta `json:"market_cache"`
}

// State is the scheduler-owned part of the snapshot.
type State struct {
	Active          []string                      `json:"active_stocks"`
	LastRun         map[models.StageKey]time.Time `json:"last_run"`
	Progress        progressState                 `json:"progress"`
	Cooldowns       map[string]time.Time          `json:"decision_cooldowns"`
	Jobs            map[string]*models.Job        `json:"jobs"`
	Recommendations models.RecommendationPool     `json:"recommendations"`
	History         [][]string                    `json:"selection_history"`
	LastRefit       time.Time                     `json:"last_refit,omitempty"`
}

// Snapshot captures the full desk state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	st := State{
		Active:          append([]string{}, s.active...),
		LastRun:         make(map[models.StageKey]time.Time, len(s.lastRun)),
		Progress:        s.progress.clone(),
		Cooldowns:       make(map[string]time.Time, len(s.cooldowns)),
		Jobs:            make(map[string]*models.Job, len(s.jobs)),
		Recommendations: s.recommendations.Prune(s.activeSetLocked()),
		History:         make([][]string, 0, len(s.history)),
		LastRefit:       s.lastRefit,
	}
	for k, v := range s.lastRun {
		st.LastRun[k] = v
	}
	for k, v := range s.cooldowns {
		st.Cooldowns[k] = v
	}
	for k, v := range s.jobs {
		j := *v
		st.Jobs[k] = &j
	}
	for _, run := range s.history {
		st.History = append(st.History, append([]string{}, run...))
	}
	cases := make(map[string]*models.Case, len(s.cases))
	for k, c := range s.cases {
		cases[k] = c.Lite()
	}
	s.mu.Unlock()

	snap := Snapshot{
		Version: SnapshotVersion,
		SavedAt: s.now(),
		State:   st,
		Cases:   cases,
	}
	if s.ledger != nil {
		ls := s.ledger.Export()
		snap.Trading = &ls
	}
	if s.accounts != nil {
		snap.Accounts = s.accounts.Export()
	}
	if s.memory != nil {
		snap.Memory = s.memory.Export()
	}
	if s.market != nil {
		snap.MarketCache = s.market.ExportCache()
	}
	return snap
}

// persist overwrites the stored snapshot. Failures are logged and the
// in-memory state stays authoritative.
func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		s.lgr.Error("snapshot encode failed", logger.Error(err))
		s.metrics.RecordError("persistence", "encode")
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SaveTimeout)
	defer cancel()
	if err := s.store.Save(sctx, data); err != nil {
		s.lgr.Warn("snapshot save failed", logger.Error(err))
		s.metrics.RecordError("persistence", "save")
	}
}

// Persist flushes the snapshot now.
func (s *Service) Persist(ctx context.Context) { s.persist(ctx) }

func (s *Service) restore(ctx context.Context, data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version > SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	now := s.now()

	s.mu.Lock()
	st := snap.State
	s.active = s.active[:0]
	s.cases = make(map[string]*models.Case)
	for _, raw := range st.Active {
		sym, err := NormalizeSymbol(raw)
		if err != nil {
			s.lgr.Warn("dropping invalid symbol from snapshot", logger.String("symbol", raw))
			continue
		}
		if _, dup := s.cases[sym]; dup {
			continue
		}
		s.active = append(s.active, sym)
		c := snap.Cases[sym]
		if c == nil {
			c = models.NewCase(sym, now)
		}
		if c.Conclusions == nil {
			c.Conclusions = make(map[models.StageName]models.Conclusion)
		}
		s.cases[sym] = c
	}
	active := s.activeSetLocked()

	orphans := 0
	s.lastRun = make(map[models.StageKey]time.Time, len(st.LastRun))
	for k, v := range st.LastRun {
		if _, sym := k.Split(); sym != "" && !active[sym] {
			orphans++
			continue
		}
		s.lastRun[k] = v
	}

	s.progress = newProgressState()
	if st.Progress.Global != nil {
		s.progress.Global = st.Progress.Global
	}
	s.progress.Selection = st.Progress.Selection
	for sym, stages := range st.Progress.Symbols {
		if active[sym] && stages != nil {
			s.progress.Symbols[sym] = stages
		}
	}
	for _, sym := range s.active {
		if _, ok := s.progress.Symbols[sym]; !ok {
			s.progress.initSymbol(sym, now)
		}
	}
	s.clearRunningLocked(now)

	s.cooldowns = make(map[string]time.Time)
	for sym, t := range st.Cooldowns {
		if active[sym] {
			s.cooldowns[sym] = t
		} else {
			orphans++
		}
	}

	s.jobs = make(map[string]*models.Job, len(st.Jobs))
	for id, j := range st.Jobs {
		if j == nil {
			continue
		}
		if j.Status == models.JobRunning {
			j.Status = models.JobInterrupted
			j.Message = interruptedNote
			j.FinishedAt = &now
		}
		s.jobs[id] = j
	}

	s.recommendations = models.NewRecommendationPool()
	if st.Recommendations != nil {
		s.recommendations = st.Recommendations.Prune(active)
	}
	s.history = st.History
	if extra := len(s.history) - s.cfg.HistoryRuns; extra > 0 {
		s.history = s.history[extra:]
	}
	s.lastRefit = st.LastRefit
	s.inbox = nil
	symbols := append([]string{}, s.active...)
	s.mu.Unlock()

	if s.ledger != nil && snap.Trading != nil {
		s.ledger.Restore(*snap.Trading)
	}
	if s.accounts != nil {
		s.accounts.Restore(snap.Accounts)
	}
	if s.memory != nil {
		s.memory.Restore(snap.Memory)
		for _, e := range s.memory.Export() {
			if e.Symbol != "" && !active[e.Symbol] {
				orphans += s.memory.RemoveSymbol(e.Symbol)
			}
		}
		s.metrics.SetMemoryEntries(s.memory.Len())
	}
	if s.market != nil {
		s.market.RestoreCache(snap.MarketCache)
		s.market.Retain(ctx, active)
		for _, sym := range symbols {
			s.market.Track(sym)
		}
	}
	_, engine := s.components()
	engine.Retain(active)

	s.lgr.Info("snapshot restored",
		logger.Int("version", snap.Version),
		logger.Int("symbols", len(symbols)),
		logger.Int("orphans_purged", orphans),
		logger.Any("saved_at", snap.SavedAt))
	return nil
}

// clearRunningLocked rewrites stages that were mid-flight at save time.
func (s *Service) clearRunningLocked(now time.Time) {
	reset := models.StageProgress{Status: models.StatusPending, Message: interruptedNote, UpdatedAt: now}
	for stage, sp := range s.progress.Global {
		if sp.Status == models.StatusRunning {
			s.progress.Global[stage] = reset
		}
	}
	for _, stages := range s.progress.Symbols {
		for stage, sp := range stages {
			if sp.Status == models.StatusRunning {
				stages[stage] = reset
			}
		}
	}
	if s.progress.Selection.Status == models.StatusRunning {
		s.progress.Selection = SelectionPanel{Status: models.StatusPending, Message: interruptedNote, UpdatedAt: now}
	}
}
