// Package scheduler owns the symbol pool and drives the staged analysis
// cycles, the manual jobs and the desk snapshot.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"TradeDesk/internal/calibration"
	"TradeDesk/internal/decision"
	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/domain/repository"
	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/memory"
	"TradeDesk/internal/selection"
	"TradeDesk/pkg/logger"
	"TradeDesk/pkg/metrics"
)

var (
	ErrInvalidSymbol          = errors.New("invalid symbol")
	ErrSymbolNotActive        = errors.New("symbol not active")
	ErrRecommendationNotFound = errors.New("recommendation not found")
	ErrJobNotFound            = errors.New("job not found")
	ErrAlreadyRunning         = errors.New("scheduler already running")
	ErrEmptyEvidence          = errors.New("evidence has no content")
	ErrNotConfigured          = errors.New("not configured")
)

// MarketData is the market snapshot collaborator.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error)
	Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, models.FlowSnapshot, error)
	Track(symbol string)
	Forget(ctx context.Context, symbol string)
	Retain(ctx context.Context, active map[string]bool)
	ExportCache() map[string]models.QuoteMeta
	RestoreCache(m map[string]models.QuoteMeta)
}

// CandidateSource proposes selection candidates.
type CandidateSource interface {
	Select(ctx context.Context, themeText string, progress selection.ProgressFunc) (selection.Result, error)
}

// EvaluatorBuilder builds the per-stage evaluators from config.
type EvaluatorBuilder interface {
	Build(cfg evaluator.Config, lgr *logger.Logger) (evaluator.Set, error)
}

// Notifier forwards human-readable desk notifications.
type Notifier interface {
	Notify(ctx context.Context, kind, text string) error
}

// Deps are the collaborators of the Service. Accounts, Store, Publisher,
// Journal, Notifier and Metrics are optional.
type Deps struct {
	Market            MarketData
	Evaluators        evaluator.Set
	Registry          EvaluatorBuilder
	EvaluatorConfig   evaluator.Config
	Engine            *calibration.Engine
	CalibrationConfig calibration.Config
	Memory            *memory.Store
	Ledger            *ledger.Ledger
	Accounts          *ledger.Accounts
	Rules             *decision.Rules
	Selector          CandidateSource
	Store             repository.SnapshotStore
	Publisher         repository.Publisher
	Journal           repository.Journal
	Notifier          Notifier
	Metrics           repository.Metrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

// Service is the single writer of the desk state.
type Service struct {
	cfg Config
	lgr *logger.Logger
	now func() time.Time

	market    MarketData
	memory    *memory.Store
	ledger    *ledger.Ledger
	accounts  *ledger.Accounts
	rules     *decision.Rules
	selector  CandidateSource
	registry  EvaluatorBuilder
	store     repository.SnapshotStore
	publisher repository.Publisher
	journal   repository.Journal
	notifier  Notifier
	metrics   repository.Metrics

	compMu     sync.RWMutex
	evaluators evaluator.Set
	evalCfg    evaluator.Config
	engine     *calibration.Engine
	engineCfg  calibration.Config

	// engineMu is held shared while a signal is recorded on the engine
	// and exclusively while Reload swaps it.
	engineMu sync.RWMutex

	mu              sync.Mutex
	active          []string
	cases           map[string]*models.Case
	lastRun         map[models.StageKey]time.Time
	progress        progressState
	cooldowns       map[string]time.Time
	jobs            map[string]*models.Job
	recommendations models.RecommendationPool
	history         [][]string
	inbox           []models.Evidence
	inflight        map[models.StageKey]bool
	lastRefit       time.Time

	baseCtx  context.Context
	running  atomic.Bool
	stopLoop context.CancelFunc
	loopDone chan struct{}
	tasks    sync.WaitGroup
	saveMu   sync.Mutex
}

func New(cfg Config, d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Rules == nil {
		d.Rules = decision.NewRules(decision.DefaultConfig())
	}
	if d.Engine == nil {
		d.Engine = calibration.NewEngine(d.CalibrationConfig)
	}
	return &Service{
		cfg:             cfg.withDefaults(),
		lgr:             d.Logger,
		now:             d.Clock,
		market:          d.Market,
		memory:          d.Memory,
		ledger:          d.Ledger,
		accounts:        d.Accounts,
		rules:           d.Rules,
		selector:        d.Selector,
		registry:        d.Registry,
		store:           d.Store,
		publisher:       d.Publisher,
		journal:         d.Journal,
		notifier:        d.Notifier,
		metrics:         d.Metrics,
		evaluators:      d.Evaluators,
		evalCfg:         d.EvaluatorConfig,
		engine:          d.Engine,
		engineCfg:       d.CalibrationConfig,
		cases:           make(map[string]*models.Case),
		lastRun:         make(map[models.StageKey]time.Time),
		progress:        newProgressState(),
		cooldowns:       make(map[string]time.Time),
		jobs:            make(map[string]*models.Job),
		recommendations: models.NewRecommendationPool(),
		inflight:        make(map[models.StageKey]bool),
		baseCtx:         context.Background(),
	}
}

// Init loads the persisted snapshot. A missing snapshot starts a fresh desk.
func (s *Service) Init(ctx context.Context) error {
	s.baseCtx = context.WithoutCancel(ctx)
	if s.store == nil {
		return nil
	}
	data, err := s.store.Load(ctx)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		s.lgr.Info("no snapshot found, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := s.restore(ctx, data); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

// Start launches the control loop. It returns ErrAlreadyRunning when the
// loop is active.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.mu.Lock()
	s.stopLoop = cancel
	s.loopDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.loop(ctx)
	}()
	s.lgr.Info("scheduler started", logger.Duration("tick", s.cfg.Tick))
	return nil
}

// Stop ends the loop. In-flight stage tasks finish and persist first.
func (s *Service) Stop(ctx context.Context) {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	cancel, done := s.stopLoop, s.loopDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	s.Wait()
	s.persist(ctx)
	s.lgr.Info("scheduler stopped")
}

// Running reports whether the control loop is active.
func (s *Service) Running() bool { return s.running.Load() }

// Wait blocks until every spawned stage task and job has finished.
func (s *Service) Wait() { s.tasks.Wait() }

// Shutdown stops the loop, waits for jobs and flushes the snapshot.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Stop(ctx)
	s.Wait()
	s.persist(ctx)
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Service) loop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		wait := s.cfg.Tick
		if err := s.safeTick(ctx); err != nil {
			s.lgr.Error("scheduler fault", logger.Error(err))
			s.metrics.RecordError("scheduler", "fault")
			wait = s.cfg.FaultBackoff
		}
		timer.Reset(wait)
	}
}

func (s *Service) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.Tick(ctx)
	return nil
}

// Tick fires every due stage as its own task and returns without waiting.
func (s *Service) Tick(ctx context.Context) {
	now := s.now()
	due := s.dueKeys(now)
	for _, key := range due {
		s.spawn(ctx, key)
	}
	s.maybeRefit(ctx, now)
}

// spawn runs key detached from the loop context so Stop never aborts a
// stage half way. The stage timeout still bounds each evaluator call.
func (s *Service) spawn(ctx context.Context, key models.StageKey) {
	ctx = context.WithoutCancel(ctx)
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.lgr.Error("stage panic", logger.String("key", string(key)), logger.Any("panic", r))
				s.metrics.RecordError("scheduler", "panic")
			}
		}()
		stage, symbol := key.Split()
		var err error
		switch {
		case stage == models.StageQuant:
			err = s.RunQuantAll(ctx)
		case stage == models.StageMacro:
			err = s.RunStage(ctx, stage, "")
		default:
			err = s.RunStage(ctx, stage, symbol)
		}
		if err != nil {
			s.lgr.Warn("scheduled stage failed", logger.String("key", string(key)), logger.Error(err))
		}
	}()
}

// dueKeys evaluates every StageKey and marks the due ones in flight.
func (s *Service) dueKeys(now time.Time) []models.StageKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) == 0 {
		return nil
	}
	var keys []models.StageKey
	add := func(key models.StageKey) {
		stage, _ := key.Split()
		if s.inflight[key] || !s.isDueLocked(key, now, s.cfg.Intervals.For(stage)) {
			return
		}
		s.inflight[key] = true
		keys = append(keys, key)
	}
	add(models.GlobalKey(models.StageQuant))
	add(models.GlobalKey(models.StageMacro))
	for _, sym := range s.active {
		for _, stage := range models.SymbolStages {
			add(models.SymbolKey(stage, sym))
		}
	}
	return keys
}

// isDueLocked: failed keys are always due, never-run keys are due, others
// once the interval has elapsed.
func (s *Service) isDueLocked(key models.StageKey, now time.Time, interval time.Duration) bool {
	if s.progress.status(key) == models.StatusFailed {
		return true
	}
	last, ok := s.lastRun[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// IsDue reports whether key would fire on a tick at now.
func (s *Service) IsDue(key models.StageKey, now time.Time) bool {
	stage, _ := key.Split()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDueLocked(key, now, s.cfg.Intervals.For(stage))
}

func (s *Service) components() (evaluator.Set, *calibration.Engine) {
	s.compMu.RLock()
	defer s.compMu.RUnlock()
	return s.evaluators, s.engine
}

func (s *Service) activeSet() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSetLocked()
}

func (s *Service) activeSetLocked() map[string]bool {
	out := make(map[string]bool, len(s.active))
	for _, sym := range s.active {
		out[sym] = true
	}
	return out
}

func (s *Service) publish(ctx context.Context, e models.Event) {
	if s.publisher == nil {
		return
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.lgr.Warn("event publish failed", logger.String("type", e.Type), logger.Error(err))
		s.metrics.RecordError("publisher", "publish")
	}
}

func (s *Service) notify(ctx context.Context, kind, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, kind, text); err != nil {
		s.lgr.Warn("notify failed", logger.String("kind", kind), logger.Error(err))
	}
}
