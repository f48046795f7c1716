package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeDesk/internal/calibration"
	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/domain/repository"
	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/memory"
	"TradeDesk/internal/selection"
	"TradeDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeMarket struct {
	mu      sync.Mutex
	prices  map[string]float64
	err     error
	tracked map[string]bool
	forgot  []string
	cache   map[string]models.QuoteMeta
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices:  map[string]float64{},
		tracked: map[string]bool{},
		cache:   map[string]models.QuoteMeta{},
	}
}

func (m *fakeMarket) Quote(_ context.Context, symbol string) (models.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.MarketSnapshot{}, m.err
	}
	p, ok := m.prices[symbol]
	if !ok {
		p = 100
	}
	m.cache[symbol] = models.QuoteMeta{Price: p, Source: "fake"}
	return models.MarketSnapshot{
		Symbol: symbol, Price: p, Open: p, High: p, Low: p, VWAP: p,
		Bid: p * 0.999, Ask: p * 1.001, BidSize: 10000, AskSize: 10000,
		Volume: 1_000_000, Source: "fake",
	}, nil
}

func (m *fakeMarket) Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, models.FlowSnapshot, error) {
	q, err := m.Quote(ctx, symbol)
	if err != nil {
		return q, models.FlowSnapshot{}, err
	}
	return q, models.FlowSnapshot{Symbol: symbol, AverageDailyVolume: q.Price * q.Volume}, nil
}

func (m *fakeMarket) Track(symbol string) {
	m.mu.Lock()
	m.tracked[symbol] = true
	m.mu.Unlock()
}

func (m *fakeMarket) Forget(_ context.Context, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgot = append(m.forgot, symbol)
	delete(m.cache, symbol)
	delete(m.tracked, symbol)
}

func (m *fakeMarket) Retain(_ context.Context, active map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym := range m.cache {
		if !active[sym] {
			delete(m.cache, sym)
		}
	}
}

func (m *fakeMarket) ExportCache() map[string]models.QuoteMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.QuoteMeta, len(m.cache))
	for k, v := range m.cache {
		out[k] = v
	}
	return out
}

func (m *fakeMarket) RestoreCache(c map[string]models.QuoteMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]models.QuoteMeta, len(c))
	for k, v := range c {
		m.cache[k] = v
	}
}

// fakeEvaluator answers with a fixed conclusion per stage.
type fakeEvaluator struct {
	mu      sync.Mutex
	answers map[models.StageName]models.Conclusion
	fail    map[string]error
	block   chan struct{}
	reqs    []evaluator.Request
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{
		answers: map[models.StageName]models.Conclusion{},
		fail:    map[string]error{},
	}
}

func (f *fakeEvaluator) Name() string { return "fake" }

func (f *fakeEvaluator) Evaluate(ctx context.Context, req evaluator.Request) (models.Conclusion, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block := f.block
	err := f.fail[string(req.Stage)+":"+req.Symbol]
	c, ok := f.answers[req.Stage]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.Conclusion{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Conclusion{}, err
	}
	if !ok {
		c = models.Conclusion{
			Score:      0.6,
			Confidence: 0.8,
			Thesis:     string(req.Stage) + " outlook positive on earnings growth",
			Action:     "buy",
		}
	}
	return c, nil
}

func (f *fakeEvaluator) requests(stage models.StageName) []evaluator.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []evaluator.Request
	for _, r := range f.reqs {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeEvaluator) set() evaluator.Set {
	return evaluator.Set{
		models.StageMacro:    f,
		models.StageIndustry: f,
		models.StageStock:    f,
		models.StageExpert:   f,
		models.StageDecision: f,
	}
}

type memSnapshots struct {
	mu   sync.Mutex
	data []byte
	err  error
	n    int
}

func (m *memSnapshots) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, repository.ErrSnapshotNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memSnapshots) Save(_ context.Context, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.n++
	m.data = append([]byte(nil), b...)
	return nil
}

func (m *memSnapshots) Close() error { return nil }

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(_ context.Context, e models.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fakeSelector struct {
	result selection.Result
	err    error
}

func (f *fakeSelector) Select(_ context.Context, _ string, progress selection.ProgressFunc) (selection.Result, error) {
	if f.err != nil {
		return selection.Result{}, f.err
	}
	for i, c := range f.result.Candidates {
		progress(i+1, len(f.result.Candidates), c.Symbol)
	}
	return f.result, nil
}

type fakeBuilder struct {
	set   evaluator.Set
	err   error
	calls int
}

func (b *fakeBuilder) Build(evaluator.Config, *logger.Logger) (evaluator.Set, error) {
	b.calls++
	return b.set, b.err
}

type harness struct {
	svc    *Service
	clock  *testClock
	market *fakeMarket
	eval   *fakeEvaluator
	store  *memSnapshots
	pub    *capturePublisher
	mem    *memory.Store
	ledger *ledger.Ledger
	engine *calibration.Engine
}

func newHarness(t *testing.T, mutate ...func(*Config, *Deps)) *harness {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:  clk,
		market: newFakeMarket(),
		eval:   newFakeEvaluator(),
		store:  &memSnapshots{},
		pub:    &capturePublisher{},
		mem:    memory.NewStore(memory.Config{}, memory.WithClock(clk.Now)),
		ledger: ledger.New(ledger.Config{}, ledger.WithClock(clk.Now)),
		engine: calibration.NewEngine(calibration.Config{}, calibration.WithClock(clk.Now)),
	}
	cfg := DefaultConfig()
	deps := Deps{
		Market:     h.market,
		Evaluators: h.eval.set(),
		Engine:     h.engine,
		Memory:     h.mem,
		Ledger:     h.ledger,
		Store:      h.store,
		Publisher:  h.pub,
		Clock:      clk.Now,
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	h.svc = New(cfg, deps)
	require.NoError(t, h.svc.Init(context.Background()))
	return h
}

func (h *harness) add(t *testing.T, syms ...string) {
	t.Helper()
	for _, s := range syms {
		added, err := h.svc.AddSymbol(context.Background(), s)
		require.NoError(t, err)
		require.True(t, added)
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{in: " aapl ", want: "AAPL"},
		{in: "brk.b", want: "BRK.B"},
		{in: "", wantErr: "symbol is empty"},
		{in: "   ", wantErr: "symbol is empty"},
		{in: "1ABC", wantErr: "invalid symbol"},
		{in: "TOOLONGSYMBOL", wantErr: "invalid symbol"},
		{in: "A$B", wantErr: "invalid symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSymbol(tt.in)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidSymbol)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddSymbol_CreatesCase(t *testing.T) {
	h := newHarness(t)
	h.add(t, "xyz")

	c, err := h.svc.AnalysisFor("XYZ")
	require.NoError(t, err)
	assert.Equal(t, "active", c.Status)
	assert.True(t, h.market.tracked["XYZ"])

	added, err := h.svc.AddSymbol(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"XYZ"}, h.svc.Active())

	_, err = h.svc.AddSymbol(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestMacroFansOutToEveryCase(t *testing.T) {
	h := newHarness(t)
	h.add(t, "AAA", "BBB")

	require.NoError(t, h.svc.RunStage(context.Background(), models.StageMacro, ""))

	cases := h.svc.Analysis()
	a := cases["AAA"].Conclusions[models.StageMacro]
	b := cases["BBB"].Conclusions[models.StageMacro]
	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Thesis, b.Thesis)
	assert.Equal(t, "AAA", a.Symbol)

	p := h.svc.Progress()
	assert.Equal(t, models.StatusCompleted, p.Global[models.StageMacro].Status)
	assert.Equal(t, models.StatusCompleted, p.Symbols["BBB"][models.StageMacro].Status)

	h.add(t, "CCC")
	c, err := h.svc.AnalysisFor("CCC")
	require.NoError(t, err)
	assert.Contains(t, c.Conclusions, models.StageMacro)
}

func TestRemoveSymbol_CascadesCleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "XYZ", "KEEP")

	require.NoError(t, h.svc.RunStage(ctx, models.StageIndustry, "XYZ"))
	require.NoError(t, h.svc.RunQuantAll(ctx))
	require.True(t, h.engine.HasPending("XYZ"))
	h.mem.Write("stock", "XYZ", "XYZ guidance raised, buy with stop loss 5%", map[string]any{"force_keep": true})

	h.svc.mu.Lock()
	h.svc.cooldowns["XYZ"] = h.clock.Now()
	h.svc.recommendations[models.HorizonShort] = []models.Recommendation{{Symbol: "XYZ"}, {Symbol: "NEW"}}
	h.svc.mu.Unlock()

	require.NoError(t, h.svc.RemoveSymbol(ctx, "xyz"))

	assert.Equal(t, []string{"KEEP"}, h.svc.Active())
	_, err := h.svc.AnalysisFor("XYZ")
	assert.ErrorIs(t, err, ErrSymbolNotActive)

	h.svc.mu.Lock()
	for key := range h.svc.lastRun {
		_, sym := key.Split()
		assert.NotEqual(t, "XYZ", sym)
	}
	assert.NotContains(t, h.svc.cooldowns, "XYZ")
	assert.NotContains(t, h.svc.progress.Symbols, "XYZ")
	assert.False(t, h.svc.recommendations.Contains("XYZ"))
	assert.True(t, h.svc.recommendations.Contains("NEW"))
	h.svc.mu.Unlock()

	assert.False(t, h.engine.HasPending("XYZ"))
	assert.True(t, h.engine.HasPending("KEEP"))
	assert.Empty(t, h.mem.Retrieve("stock", "XYZ", "", 10))
	assert.Contains(t, h.market.forgot, "XYZ")

	assert.ErrorIs(t, h.svc.RemoveSymbol(ctx, "XYZ"), ErrSymbolNotActive)
}

func TestIsDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA")
	key := models.SymbolKey(models.StageIndustry, "AAA")

	assert.True(t, h.svc.IsDue(key, h.clock.Now()), "never run is due")

	require.NoError(t, h.svc.RunStage(ctx, models.StageIndustry, "AAA"))
	assert.False(t, h.svc.IsDue(key, h.clock.Now()))
	assert.False(t, h.svc.IsDue(key, h.clock.Now().Add(59*time.Minute)))
	assert.True(t, h.svc.IsDue(key, h.clock.Now().Add(60*time.Minute)))

	h.eval.fail["industry:AAA"] = errors.New("upstream timeout")
	require.Error(t, h.svc.RunStage(ctx, models.StageIndustry, "AAA"))
	assert.True(t, h.svc.IsDue(key, h.clock.Now()), "failed is due immediately")
	assert.Equal(t, models.StatusFailed, h.svc.Progress().Symbols["AAA"][models.StageIndustry].Status)
	assert.Equal(t, 1, h.pub.count(models.EventStageFailed))
}

func TestStageFailureLeavesSiblingsAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA", "BBB")
	h.eval.fail["stock:AAA"] = errors.New("boom")

	assert.Error(t, h.svc.RunStage(ctx, models.StageStock, "AAA"))
	require.NoError(t, h.svc.RunStage(ctx, models.StageStock, "BBB"))

	p := h.svc.Progress()
	assert.Equal(t, models.StatusFailed, p.Symbols["AAA"][models.StageStock].Status)
	assert.Equal(t, models.StatusCompleted, p.Symbols["BBB"][models.StageStock].Status)
}

func TestRunQuantAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA", "BBB")
	h.market.prices["AAA"] = 50

	require.NoError(t, h.svc.RunQuantAll(ctx))

	c, err := h.svc.AnalysisFor("AAA")
	require.NoError(t, err)
	require.NotNil(t, c.Signal)
	assert.Equal(t, 50.0, c.LatestPrice)
	assert.GreaterOrEqual(t, c.Signal.Gate, 0.0)
	assert.LessOrEqual(t, c.Signal.Gate, 1.0)

	hist := h.ledger.EquityHistory()
	require.NotEmpty(t, hist)
	assert.Equal(t, "quant_cycle", hist[len(hist)-1].Reason)
	assert.Equal(t, 1, h.pub.count(models.EventEquitySnapshot))

	h.market.err = errors.New("feed down")
	assert.Error(t, h.svc.RunQuantAll(ctx))
	assert.Equal(t, models.StatusFailed, h.svc.Progress().Global[models.StageQuant].Status)
}

func TestDecision_SkipsWithoutPrerequisites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA")
	key := models.SymbolKey(models.StageDecision, "AAA")

	require.NoError(t, h.svc.RunStage(ctx, models.StageDecision, "AAA"))
	sp := h.svc.Progress().Symbols["AAA"][models.StageDecision]
	assert.Equal(t, models.StatusSkipped, sp.Status)
	assert.Equal(t, "waiting for quant output", sp.Message)
	assert.True(t, h.svc.IsDue(key, h.clock.Now()), "skipped does not advance the timestamp")
	assert.Empty(t, h.eval.requests(models.StageDecision))
}

func seedCase(h *harness, sym string, sig models.SignalOutput) {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	c := h.svc.cases[sym]
	for _, st := range []models.StageName{models.StageMacro, models.StageIndustry, models.StageStock, models.StageExpert} {
		c.Conclusions[st] = models.Conclusion{Stage: st, Symbol: sym, Score: 0.5, Confidence: 0.8}
	}
	sig.Symbol = sym
	c.Signal = &sig
	c.LatestPrice = 100
}

func TestDecision_ExecutesLongAndCoolsDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA")
	seedCase(h, "AAA", models.SignalOutput{Position: 0.5})
	h.eval.answers[models.StageDecision] = models.Conclusion{Score: 0.8, Confidence: 0.9, Thesis: "strong setup"}

	require.NoError(t, h.svc.RunStage(ctx, models.StageDecision, "AAA"))

	c, err := h.svc.AnalysisFor("AAA")
	require.NoError(t, err)
	require.NotNil(t, c.Decision)
	assert.Equal(t, models.DirectionLong, c.Decision.Direction)
	assert.InDelta(t, 0.4, c.Decision.TargetPosition, 1e-9)

	pos, ok := h.ledger.Position("AAA")
	require.True(t, ok)
	assert.True(t, pos.Quantity.IsPositive())
	assert.Equal(t, 1, h.pub.count(models.EventTradeFilled))

	sp := h.svc.Progress().Symbols["AAA"][models.StageDecision]
	assert.Equal(t, models.StatusPending, sp.Status)
	assert.Equal(t, "Last decision: LONG; waiting for next analysis cycle", sp.Message)
	assert.Equal(t, waitingNote, h.svc.Progress().Symbols["AAA"][models.StageIndustry].Message)

	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.svc.RunStage(ctx, models.StageDecision, "AAA"))
	sp = h.svc.Progress().Symbols["AAA"][models.StageDecision]
	assert.Equal(t, models.StatusSkipped, sp.Status)
	assert.True(t, strings.HasPrefix(sp.Message, "cooldown active"))
	assert.Len(t, h.eval.requests(models.StageDecision), 1)

	entries := h.mem.Retrieve("decision", "AAA", "", 5)
	require.NotEmpty(t, entries)
	assert.Equal(t, memory.TierLongTerm, entries[0].Tier)
}

func TestDecision_NoTradeNeverReachesLedger(t *testing.T) {
	h := newHarness(t)
	h.add(t, "AAA")
	seedCase(h, "AAA", models.SignalOutput{Position: 0.5, EventRisk: 0.9})

	require.NoError(t, h.svc.RunStage(context.Background(), models.StageDecision, "AAA"))

	c, _ := h.svc.AnalysisFor("AAA")
	assert.Equal(t, models.DirectionNoTrade, c.Decision.Direction)
	assert.Empty(t, h.ledger.TradeHistory("", time.Time{}))
	assert.Zero(t, h.pub.count(models.EventTradeFilled)+h.pub.count(models.EventTradeRejected))
}

func TestDecision_RemoveIfFlat(t *testing.T) {
	h := newHarness(t)
	h.add(t, "AAA")
	seedCase(h, "AAA", models.SignalOutput{Position: 0.5})
	h.eval.answers[models.StageDecision] = models.Conclusion{Score: -0.8, Confidence: 0.9, PoolAction: models.PoolActionRemoveIfFlat}

	require.NoError(t, h.svc.RunStage(context.Background(), models.StageDecision, "AAA"))

	assert.Empty(t, h.svc.Active())
	assert.Equal(t, 1, h.pub.count(models.EventTradeRejected))
}

func TestExpertConsumesAddressedEvidence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA")

	_, err := h.svc.SubmitEvidence(ctx, models.Evidence{Symbol: "aaa", Content: "channel checks strong", Reliability: 0.9})
	require.NoError(t, err)
	_, err = h.svc.SubmitEvidence(ctx, models.Evidence{Symbol: "BBB", Content: "unrelated"})
	require.NoError(t, err)
	_, err = h.svc.SubmitEvidence(ctx, models.Evidence{Broadcast: true, Content: "rates on hold"})
	require.NoError(t, err)
	_, err = h.svc.SubmitEvidence(ctx, models.Evidence{Symbol: "AAA"})
	assert.ErrorIs(t, err, ErrEmptyEvidence)

	require.NoError(t, h.svc.RunStage(ctx, models.StageExpert, "AAA"))

	reqs := h.eval.requests(models.StageExpert)
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Evidence, 2)

	left := h.svc.Evidence()
	require.Len(t, left, 2)
	assert.Equal(t, "BBB", left[0].Symbol)
	assert.True(t, left[1].Broadcast)
}

func TestEvidenceInboxIsBounded(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.InboxSize = 3 })
	for i := 0; i < 5; i++ {
		_, err := h.svc.SubmitEvidence(context.Background(), models.Evidence{
			Broadcast: true,
			Content:   strings.Repeat("x", i+1),
		})
		require.NoError(t, err)
	}
	left := h.svc.Evidence()
	require.Len(t, left, 3)
	assert.Equal(t, "xxx", left[0].Content)
}

func TestRunOnceJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.RunOnce(ctx)
	require.NoError(t, err)
	h.svc.Wait()
	job, err := h.svc.Job(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "No active stocks", job.Message)

	h.add(t, "AAA")
	id, err = h.svc.RunOnce(ctx)
	require.NoError(t, err)
	h.svc.Wait()
	job, err = h.svc.Job(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "Run once completed for 1 stocks", job.Message)

	c, _ := h.svc.AnalysisFor("AAA")
	assert.NotNil(t, c.Signal)
	assert.NotNil(t, c.Decision)
}

func TestRunOnceJob_CollectsErrors(t *testing.T) {
	h := newHarness(t)
	h.add(t, "AAA")
	h.eval.fail["stock:AAA"] = errors.New("upstream 503")

	id, err := h.svc.RunOnce(context.Background())
	require.NoError(t, err)
	h.svc.Wait()

	job, err := h.svc.Job(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Message, "stock_AAA:upstream 503")
}

func TestRunOnceJob_DuplicateReturnsRunningID(t *testing.T) {
	h := newHarness(t)
	h.add(t, "AAA")
	h.eval.block = make(chan struct{})

	first, err := h.svc.RunOnce(context.Background())
	require.NoError(t, err)
	second, err := h.svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, h.svc.Jobs(), 1)

	close(h.eval.block)
	h.svc.Wait()
	job, _ := h.svc.Job(first)
	assert.NotEqual(t, models.JobRunning, job.Status)

	third, err := h.svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	h.svc.Wait()
}

func TestRunSelectionJob(t *testing.T) {
	cands := []models.Candidate{
		{Symbol: "AAA", Horizon: models.HorizonShort, Score: 0.9},
		{Symbol: "NVDA", Horizon: models.HorizonShort, Score: 0.8, Name: "Nvidia"},
		{Symbol: "MSFT", Horizon: models.HorizonMid, Score: 0.7},
		{Symbol: "XOM", Horizon: models.HorizonLong, Score: 0.6},
	}
	sel := &fakeSelector{result: selection.Result{Candidates: cands, Source: selection.SourceQuotes}}
	h := newHarness(t, func(_ *Config, d *Deps) { d.Selector = sel })
	ctx := context.Background()
	h.add(t, "AAA")

	id, err := h.svc.RunSelection(ctx)
	require.NoError(t, err)
	h.svc.Wait()

	job, err := h.svc.Job(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.True(t, strings.HasPrefix(job.Message, "selection completed (quotes+theme): "))

	pool := h.svc.Recommendations()
	assert.False(t, pool.Contains("AAA"), "active symbols are excluded")
	assert.True(t, pool.Contains("NVDA"))
	assert.Equal(t, 3, pool.Count())
	assert.Equal(t, models.StatusCompleted, h.svc.Progress().Selection.Status)

	assert.ErrorIs(t, h.svc.SelectRecommendation(ctx, "TSLA"), ErrRecommendationNotFound)
	require.NoError(t, h.svc.SelectRecommendation(ctx, "nvda"))
	assert.Contains(t, h.svc.Active(), "NVDA")
	assert.False(t, h.svc.Recommendations().Contains("NVDA"))
}

func TestRunSelectionJob_Failure(t *testing.T) {
	sel := &fakeSelector{err: errors.New("no quotes")}
	h := newHarness(t, func(_ *Config, d *Deps) { d.Selector = sel })

	id, err := h.svc.RunSelection(context.Background())
	require.NoError(t, err)
	h.svc.Wait()

	job, _ := h.svc.Job(id)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, models.StatusFailed, h.svc.Progress().Selection.Status)
}

func TestSnapshotRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "AAA", "BBB")
	require.NoError(t, h.svc.RunStage(ctx, models.StageIndustry, "AAA"))
	_, err := h.svc.SubmitEvidence(ctx, models.Evidence{Broadcast: true, Content: "macro note"})
	require.NoError(t, err)

	h.svc.mu.Lock()
	h.svc.lastRun[models.SymbolKey(models.StageStock, "GONE")] = h.clock.Now()
	h.svc.cooldowns["GONE"] = h.clock.Now()
	h.svc.jobs["j1"] = &models.Job{ID: "j1", Type: models.JobRunOnce, Status: models.JobRunning, StartedAt: h.clock.Now()}
	h.svc.mu.Unlock()
	h.mem.Write("stock", "GONE", "GONE guidance cut, sell with stop loss 3%", map[string]any{"force_keep": true})
	h.svc.Persist(ctx)

	restored := New(DefaultConfig(), Deps{
		Market:     newFakeMarket(),
		Evaluators: h.eval.set(),
		Memory:     memory.NewStore(memory.Config{}),
		Ledger:     ledger.New(ledger.Config{}),
		Store:      h.store,
		Clock:      h.clock.Now,
	})
	require.NoError(t, restored.Init(ctx))

	assert.Equal(t, []string{"AAA", "BBB"}, restored.Active())
	c, err := restored.AnalysisFor("AAA")
	require.NoError(t, err)
	assert.Contains(t, c.Conclusions, models.StageIndustry)
	assert.False(t, restored.IsDue(models.SymbolKey(models.StageIndustry, "AAA"), h.clock.Now()))

	job, err := restored.Job("j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobInterrupted, job.Status)
	assert.Equal(t, "Interrupted by restart", job.Message)

	restored.mu.Lock()
	assert.NotContains(t, restored.lastRun, models.SymbolKey(models.StageStock, "GONE"))
	assert.NotContains(t, restored.cooldowns, "GONE")
	restored.mu.Unlock()
	assert.Empty(t, restored.Evidence())
	assert.Empty(t, restored.memory.Retrieve("stock", "GONE", "", 5))
}

func TestInit_MissingSnapshotStartsFresh(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.svc.Active())
}

func TestPersistFailureKeepsServing(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("disk full")
	h.add(t, "AAA")
	require.NoError(t, h.svc.RunStage(context.Background(), models.StageIndustry, "AAA"))
	assert.Equal(t, []string{"AAA"}, h.svc.Active())
}

func TestTickFiresDueStages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.Tick(ctx)
	h.svc.Wait()
	assert.Empty(t, h.eval.requests(models.StageMacro), "empty pool does nothing")

	h.add(t, "AAA")
	h.svc.Tick(ctx)
	h.svc.Wait()

	assert.Len(t, h.eval.requests(models.StageMacro), 1)
	assert.Len(t, h.eval.requests(models.StageIndustry), 1)
	assert.False(t, h.svc.IsDue(models.GlobalKey(models.StageMacro), h.clock.Now()))
	assert.False(t, h.svc.IsDue(models.GlobalKey(models.StageQuant), h.clock.Now()))

	h.svc.Tick(ctx)
	h.svc.Wait()
	assert.Len(t, h.eval.requests(models.StageMacro), 1, "completed stages wait for their interval")

	next := h.svc.Progress().NextRuns[models.GlobalKey(models.StageQuant)]
	assert.False(t, next.DueNow)
	assert.Equal(t, 180, next.SecondsLeft)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Start())
	assert.ErrorIs(t, h.svc.Start(), ErrAlreadyRunning)
	assert.True(t, h.svc.Status().Running)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.svc.Stop(ctx)
	assert.False(t, h.svc.Running())
}

func TestStopLetsInFlightStagesFinish(t *testing.T) {
	h := newHarness(t)
	h.add(t, "AAA")
	block := make(chan struct{})
	h.eval.mu.Lock()
	h.eval.block = block
	h.eval.mu.Unlock()

	require.NoError(t, h.svc.Start())
	require.Eventually(t, func() bool {
		return len(h.eval.requests(models.StageMacro)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(block)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.svc.Stop(ctx)

	macro := h.svc.Progress().Global[models.StageMacro]
	assert.Equal(t, models.StatusCompleted, macro.Status, macro.Message)
	industry := h.svc.Progress().Symbols["AAA"][models.StageIndustry]
	assert.Equal(t, models.StatusCompleted, industry.Status, industry.Message)

	raw, err := h.store.Load(ctx)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, models.StatusCompleted, snap.State.Progress.Global[models.StageMacro].Status)
	require.Contains(t, snap.Cases, "AAA")
	assert.Contains(t, snap.Cases["AAA"].Conclusions, models.StageMacro)

	h.eval.mu.Lock()
	calls := len(h.eval.reqs)
	h.eval.mu.Unlock()
	h.clock.Advance(24 * time.Hour)
	time.Sleep(50 * time.Millisecond)
	h.eval.mu.Lock()
	assert.Equal(t, calls, len(h.eval.reqs), "no stage is dispatched after Stop")
	h.eval.mu.Unlock()
}

func TestReloadWaitsForSignalInFlight(t *testing.T) {
	b := &fakeBuilder{}
	h := newHarness(t, func(_ *Config, d *Deps) { d.Registry = b })
	b.set = h.eval.set()

	h.svc.engineMu.RLock()
	done := make(chan error, 1)
	go func() { done <- h.svc.Reload(context.Background(), evaluator.Config{Default: "fake"}) }()

	select {
	case <-done:
		t.Fatal("reload swapped the engine while a signal was being recorded")
	case <-time.After(50 * time.Millisecond):
	}
	h.svc.engineMu.RUnlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reload did not finish")
	}
}

func TestReloadCarriesSamples(t *testing.T) {
	b := &fakeBuilder{}
	h := newHarness(t, func(_ *Config, d *Deps) { d.Registry = b })
	b.set = h.eval.set()
	ctx := context.Background()
	h.add(t, "AAA")
	require.NoError(t, h.svc.RunQuantAll(ctx))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.svc.RunQuantAll(ctx))

	_, before := h.svc.components()
	require.NoError(t, h.svc.Reload(ctx, evaluator.Config{Default: "fake"}))
	_, after := h.svc.components()

	assert.NotSame(t, before, after)
	assert.True(t, after.HasPending("AAA"))
	assert.Equal(t, before.SampleCount(), after.SampleCount())
	assert.Equal(t, 1, b.calls)

	b.err = errors.New("bad provider")
	assert.Error(t, h.svc.Reload(ctx, evaluator.Config{}))
}

func TestTrainSkipsWithoutSamples(t *testing.T) {
	h := newHarness(t)
	before := h.engine.Params()
	rep := h.svc.Train(context.Background())
	assert.Equal(t, calibration.ModeSkip, rep.Training.Mode)
	assert.Equal(t, before, h.engine.Params())

	last, ok := h.svc.CalibrationReport()
	require.True(t, ok)
	assert.Equal(t, calibration.ModeSkip, last.Training.Mode)
}
