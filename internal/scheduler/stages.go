package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"TradeDesk/internal/decision"
	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/ledger"
	"TradeDesk/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const quantConcurrency = 8

// RunStage runs one stage. Global stages ignore symbol.
func (s *Service) RunStage(ctx context.Context, stage models.StageName, symbol string) error {
	switch stage {
	case models.StageQuant:
		if symbol == "" {
			return s.RunQuantAll(ctx)
		}
		return s.runQuant(ctx, symbol)
	case models.StageDecision:
		return s.runDecision(ctx, symbol)
	case models.StageMacro, models.StageIndustry, models.StageStock, models.StageExpert:
		return s.runResearch(ctx, stage, symbol)
	}
	return fmt.Errorf("unknown stage %q", stage)
}

func (s *Service) runResearch(ctx context.Context, stage models.StageName, symbol string) error {
	key := models.GlobalKey(stage)
	if !stage.IsGlobal() {
		key = models.SymbolKey(stage, symbol)
		if !s.isActive(symbol) {
			return fmt.Errorf("%w: %s", ErrSymbolNotActive, symbol)
		}
	} else {
		symbol = ""
	}

	started := s.now()
	s.setStage(key, models.StatusRunning, "running")
	if stage == models.StageMacro {
		s.fanMacroStatus(models.StatusRunning, "running")
	}

	req := s.buildRequest(ctx, stage, symbol)
	con, err := s.evaluate(ctx, req)
	if err != nil {
		s.fail(ctx, key, started, err)
		if stage == models.StageMacro {
			s.fanMacroStatus(models.StatusFailed, err.Error())
		}
		return err
	}

	s.mu.Lock()
	if stage == models.StageMacro {
		for sym, c := range s.cases {
			cp := con
			cp.Symbol = sym
			c.Conclusions[models.StageMacro] = cp
			s.progress.set(models.SymbolKey(models.StageMacro, sym), models.StatusCompleted, "completed", s.now())
		}
	} else if c, ok := s.cases[symbol]; ok {
		c.Conclusions[stage] = con
	}
	s.mu.Unlock()

	if stage == models.StageExpert {
		s.consumeEvidence(symbol, req.Evidence)
	}
	s.rememberConclusion(stage, symbol, con)
	s.complete(ctx, key, started, "completed")
	return nil
}

func (s *Service) fanMacroStatus(status models.StageStatus, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym := range s.cases {
		s.progress.set(models.SymbolKey(models.StageMacro, sym), status, msg, s.now())
	}
}

// RunQuantAll recomputes every active symbol's signal concurrently, then
// records one equity snapshot. It fails when any symbol failed.
func (s *Service) RunQuantAll(ctx context.Context) error {
	key := models.GlobalKey(models.StageQuant)
	symbols := s.Active()
	started := s.now()
	s.setStage(key, models.StatusRunning, fmt.Sprintf("computing signals for %d stocks", len(symbols)))

	var g errgroup.Group
	g.SetLimit(quantConcurrency)
	for _, sym := range symbols {
		g.Go(func() error { return s.runQuant(ctx, sym) })
	}
	err := g.Wait()

	s.snapshotEquity(ctx, "quant_cycle")
	if err != nil {
		s.fail(ctx, key, started, err)
		return err
	}
	s.complete(ctx, key, started, fmt.Sprintf("signals updated for %d stocks", len(symbols)))
	return nil
}

func (s *Service) runQuant(ctx context.Context, symbol string) error {
	key := models.SymbolKey(models.StageQuant, symbol)
	s.mu.Lock()
	c, ok := s.cases[symbol]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSymbolNotActive, symbol)
	}
	research := c.ResearchConclusions()
	direction := models.DirectionLong
	if c.Decision != nil {
		direction = c.Decision.Direction
	}
	s.setStageLocked(key, models.StatusRunning, "running")
	s.mu.Unlock()

	eventRisk := 0.0
	for _, con := range research {
		eventRisk = math.Max(eventRisk, con.EventRisk)
	}

	snap, flow, err := s.market.Snapshot(ctx, symbol)
	if err != nil {
		s.setStage(key, models.StatusFailed, err.Error())
		return fmt.Errorf("quant %s: %w", symbol, err)
	}
	s.engineMu.RLock()
	_, engine := s.components()
	sig := engine.ComputeSignal(symbol, snap, flow, research, eventRisk)
	s.engineMu.RUnlock()

	s.mu.Lock()
	if c, ok := s.cases[symbol]; ok {
		c.Signal = &sig
		c.LatestPrice = snap.Price
		ts := snap.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		c.LatestPriceAt = &ts
	}
	s.setStageLocked(key, models.StatusCompleted, fmt.Sprintf("position %.3f, gate %.2f", sig.Position, sig.Gate))
	s.mu.Unlock()

	if s.accounts != nil {
		s.accounts.MarkToMarket(symbol, snap.Price)
	}
	if s.ledger != nil {
		if pos, ok := s.ledger.Position(symbol); ok && !pos.IsFlat() {
			s.ledger.MarkToMarket(symbol, snap.Price)
			s.applyFeedback(symbol, direction)
		}
	}
	return nil
}

func (s *Service) runDecision(ctx context.Context, symbol string) error {
	key := models.SymbolKey(models.StageDecision, symbol)
	now := s.now()

	s.mu.Lock()
	c, ok := s.cases[symbol]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSymbolNotActive, symbol)
	}
	if last, ok := s.cooldowns[symbol]; ok && s.cfg.DecisionCooldown > 0 && now.Sub(last) < s.cfg.DecisionCooldown {
		left := s.cfg.DecisionCooldown - now.Sub(last)
		s.setStageLocked(key, models.StatusSkipped, fmt.Sprintf("cooldown active, %ds left", int(left.Seconds())))
		s.mu.Unlock()
		return nil
	}
	s.cooldowns[symbol] = now
	research := c.ResearchConclusions()
	var sig *models.SignalOutput
	if c.Signal != nil {
		cp := *c.Signal
		sig = &cp
	}
	s.mu.Unlock()

	switch {
	case sig == nil:
		s.setStage(key, models.StatusSkipped, "waiting for quant output")
		return nil
	case len(research) == 0:
		s.setStage(key, models.StatusSkipped, "waiting for upstream conclusions")
		return nil
	}

	started := s.now()
	s.setStage(key, models.StatusRunning, "running")
	req := s.buildRequest(ctx, models.StageDecision, symbol)
	req.Upstream = research
	req.Signal = sig
	verdict, err := s.evaluate(ctx, req)
	if err != nil {
		s.fail(ctx, key, started, err)
		return err
	}

	dec := s.rules.Decide(decision.Input{
		Symbol:      symbol,
		Verdict:     verdict,
		Conclusions: research,
		Signal:      *sig,
		Exposure:    req.Exposure,
		Now:         s.now(),
	})

	s.mu.Lock()
	if c, ok := s.cases[symbol]; ok {
		c.Conclusions[models.StageDecision] = verdict
		c.Decision = &dec
	}
	s.mu.Unlock()

	if s.memory != nil {
		text, meta := decision.MemoryNote(dec)
		s.memory.Write(string(models.StageDecision), symbol, text, meta)
		s.metrics.SetMemoryEntries(s.memory.Len())
	}

	remove := s.executeTrade(ctx, dec)

	s.mu.Lock()
	s.progress.resetCycle(symbol, s.now())
	s.mu.Unlock()
	s.completeWith(ctx, key, started, models.StatusPending,
		fmt.Sprintf("Last decision: %s; waiting for next analysis cycle", dec.Direction))

	if remove {
		s.lgr.Info("removing flat symbol after decision", logger.String("symbol", symbol))
		if err := s.RemoveSymbol(ctx, symbol); err != nil && !errors.Is(err, ErrSymbolNotActive) {
			return err
		}
	}
	return nil
}

// executeTrade sends a tradable decision to the ledger. It reports whether
// the symbol should leave the pool.
func (s *Service) executeTrade(ctx context.Context, dec models.Decision) bool {
	if dec.Direction == models.DirectionNoTrade || s.ledger == nil {
		return false
	}
	symbol := dec.Symbol

	s.mu.Lock()
	price := 0.0
	if c, ok := s.cases[symbol]; ok {
		price = c.LatestPrice
	}
	s.mu.Unlock()
	if price <= 0 && s.market != nil {
		if q, err := s.market.Quote(ctx, symbol); err == nil {
			price = q.Price
		} else {
			s.lgr.Warn("no price for execution", logger.String("symbol", symbol), logger.Error(err))
		}
	}

	order := s.ledger.ExecuteDecision(dec, price)
	s.metrics.RecordOrder(string(order.Side), string(order.Status))
	if s.accounts != nil && price > 0 {
		for user, o := range s.accounts.Execute(dec, price) {
			s.lgr.Debug("account filled",
				logger.String("user", user),
				logger.String("symbol", symbol),
				logger.String("side", string(o.Side)),
				logger.String("quantity", o.Quantity.String()))
		}
	}
	rec := tradeRecord(order)

	evType := models.EventTradeFilled
	if err := order.Err(); err != nil {
		evType = models.EventTradeRejected
		s.lgr.Info("order rejected", logger.String("symbol", symbol), logger.String("reason", order.Reason))
	} else {
		s.lgr.Info("order filled",
			logger.String("symbol", symbol),
			logger.String("side", string(order.Side)),
			logger.String("quantity", order.Quantity.String()),
			logger.String("price", order.FilledPrice.StringFixed(2)))
		s.notify(ctx, "trade", fmt.Sprintf("%s %s %s @ %s (%s)",
			order.Side, order.Quantity.String(), symbol, order.FilledPrice.StringFixed(2), dec.Direction))
		if pos, ok := s.ledger.Position(symbol); ok && !pos.IsFlat() {
			s.applyFeedback(symbol, dec.Direction)
		}
	}
	if s.journal != nil {
		if err := s.journal.RecordTrade(ctx, rec); err != nil {
			s.lgr.Warn("journal trade failed", logger.Error(err))
			s.metrics.RecordError("journal", "trade")
		}
	}
	s.publish(ctx, models.Event{Type: evType, Symbol: symbol, Message: order.Reason, Payload: rec})
	if order.Status == ledger.OrderFilled {
		s.publishEquity(ctx, "trade")
	}

	return dec.Plan.PoolAction == models.PoolActionRemoveIfFlat && s.ledger.IsFlat(symbol)
}

func tradeRecord(o ledger.Order) models.TradeRecord {
	return models.TradeRecord{
		OrderID:     o.ID,
		DecisionID:  o.DecisionID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Direction:   o.Direction,
		Status:      string(o.Status),
		Reason:      o.Reason,
		Quantity:    o.Quantity.InexactFloat64(),
		Price:       o.RequestedPrice.InexactFloat64(),
		FilledPrice: o.FilledPrice.InexactFloat64(),
		Commission:  o.Commission.InexactFloat64(),
		CreatedAt:   o.CreatedAt,
	}
}

// applyFeedback moves memory importance by the unrealized return of the
// open position.
func (s *Service) applyFeedback(symbol string, direction models.Direction) {
	if s.memory == nil || s.ledger == nil {
		return
	}
	pos, ok := s.ledger.Position(symbol)
	if !ok || pos.IsFlat() {
		return
	}
	mv := math.Max(1e-9, math.Abs(pos.MarketValue.InexactFloat64()))
	ratio := pos.UnrealizedPnL.InexactFloat64() / mv
	s.memory.ApplyFeedback(symbol, ratio, string(direction), s.now())
}

// snapshotEquity records an equity point and forwards it downstream.
func (s *Service) snapshotEquity(ctx context.Context, reason string) {
	if s.ledger == nil {
		return
	}
	s.ledger.RecordEquitySnapshot(reason)
	s.publishEquity(ctx, reason)
}

func (s *Service) publishEquity(ctx context.Context, reason string) {
	sum := s.ledger.AccountSummary()
	total := sum.TotalValue.InexactFloat64()
	s.metrics.SetEquity(total)
	pt := models.EquityPoint{
		Timestamp:  s.now(),
		TotalValue: total,
		Cash:       sum.Cash.InexactFloat64(),
		Reason:     reason,
	}
	if s.journal != nil {
		if err := s.journal.RecordEquity(ctx, pt); err != nil {
			s.lgr.Warn("journal equity failed", logger.Error(err))
			s.metrics.RecordError("journal", "equity")
		}
	}
	s.publish(ctx, models.Event{Type: models.EventEquitySnapshot, Message: reason, Payload: pt})
}

// buildRequest assembles the evaluator bundle. Market data is best effort.
func (s *Service) buildRequest(ctx context.Context, stage models.StageName, symbol string) evaluator.Request {
	req := evaluator.Request{Stage: stage, Symbol: symbol, AsOf: s.now()}

	s.mu.Lock()
	if c, ok := s.cases[symbol]; ok {
		if stage != models.StageIndustry {
			req.Upstream = c.ResearchConclusions()
			delete(req.Upstream, stage)
		}
		if c.Signal != nil {
			cp := *c.Signal
			req.Signal = &cp
		}
		if c.Decision != nil {
			req.FocusHints = append([]string(nil), c.Decision.Risk.Warnings...)
		}
	}
	if stage == models.StageExpert {
		req.Evidence = s.materialsLocked(symbol)
	}
	s.mu.Unlock()

	if symbol != "" && s.market != nil && (stage == models.StageIndustry || stage == models.StageStock) {
		if q, err := s.market.Quote(ctx, symbol); err == nil {
			req.Market = &q
		}
	}
	if s.ledger != nil && symbol != "" {
		req.Exposure = s.ledger.Exposure(symbol)
	}
	if s.memory != nil {
		req.Memory = s.memory.Summary(string(stage), symbol, memoryQuery(req), s.cfg.MemoryLimit)
	}
	return req
}

func memoryQuery(req evaluator.Request) string {
	parts := []string{req.Symbol, string(req.Stage)}
	for _, ev := range req.Evidence {
		if ev.Summary != "" {
			parts = append(parts, ev.Summary)
		}
	}
	parts = append(parts, req.FocusHints...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (s *Service) evaluate(ctx context.Context, req evaluator.Request) (models.Conclusion, error) {
	set, _ := s.components()
	ev, err := set.For(req.Stage)
	if err != nil {
		return models.Conclusion{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()
	con, err := ev.Evaluate(cctx, req)
	if err != nil {
		return models.Conclusion{}, err
	}
	con.Stage = req.Stage
	con.Symbol = req.Symbol
	if con.CreatedAt.IsZero() {
		con.CreatedAt = s.now()
	}
	return con, nil
}

func (s *Service) rememberConclusion(stage models.StageName, symbol string, c models.Conclusion) {
	if s.memory == nil {
		return
	}
	subject := symbol
	if subject == "" {
		subject = "market"
	}
	text := fmt.Sprintf("%s view on %s: %s\nAction: %s\nScore: %.2f, confidence: %.2f",
		stage, subject, c.Thesis, c.Action, c.Score, c.Confidence)
	meta := map[string]any{
		"score":              c.Score,
		"confidence":         c.Confidence,
		"evidence_count":     len(c.EvidenceIDs),
		"thesis":             truncate(c.Thesis, 400),
		"action":             truncate(c.Action, 200),
		"analysis_timestamp": c.CreatedAt.Format(time.RFC3339),
	}
	s.memory.Write(string(stage), symbol, text, meta)
	s.metrics.SetMemoryEntries(s.memory.Len())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (s *Service) complete(ctx context.Context, key models.StageKey, started time.Time, msg string) {
	s.completeWith(ctx, key, started, models.StatusCompleted, msg)
}

// completeWith records the run and persists. Keys of removed symbols are
// dropped.
func (s *Service) completeWith(ctx context.Context, key models.StageKey, started time.Time, status models.StageStatus, msg string) {
	stage, symbol := key.Split()
	s.mu.Lock()
	if _, ok := s.cases[symbol]; symbol != "" && !ok {
		s.mu.Unlock()
		return
	}
	s.lastRun[key] = s.now()
	s.setStageLocked(key, status, msg)
	s.mu.Unlock()

	s.metrics.RecordStageRun(string(stage), string(models.StatusCompleted), s.now().Sub(started).Seconds())
	s.publish(ctx, models.Event{Type: models.EventStageCompleted, Symbol: symbol, Stage: string(stage), Message: msg})
	s.persist(ctx)
}

func (s *Service) fail(ctx context.Context, key models.StageKey, started time.Time, err error) {
	stage, symbol := key.Split()
	s.setStage(key, models.StatusFailed, err.Error())
	s.lgr.Warn("stage failed", logger.String("key", string(key)), logger.Error(err))
	s.metrics.RecordStageRun(string(stage), string(models.StatusFailed), s.now().Sub(started).Seconds())
	s.metrics.RecordError("stage", string(stage))
	s.publish(ctx, models.Event{Type: models.EventStageFailed, Symbol: symbol, Stage: string(stage), Message: err.Error()})
	s.persist(ctx)
}
