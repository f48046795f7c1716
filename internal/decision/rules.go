// Package decision turns the decider's conclusion and the quant signal into
// a risk-checked trading decision.
package decision

import (
	"fmt"
	"math"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"

	"github.com/google/uuid"
)

type Config struct {
	MaxPosition        float64 `yaml:"max_position" default:"1.0"`
	StopLoss           float64 `yaml:"stop_loss" default:"-0.02"`
	TakeProfit         float64 `yaml:"take_profit" default:"0.05"`
	DivergenceLimit    float64 `yaml:"divergence_limit" default:"0.5"`
	EventRiskLimit     float64 `yaml:"event_risk_limit" default:"0.7"`
	MinConfidence      float64 `yaml:"min_confidence" default:"0.4"`
	DirectionThreshold float64 `yaml:"direction_threshold" default:"0.2"`
	SplitThreshold     float64 `yaml:"split_threshold" default:"0.3"`
}

func DefaultConfig() Config {
	return Config{
		MaxPosition:        1.0,
		StopLoss:           -0.02,
		TakeProfit:         0.05,
		DivergenceLimit:    0.5,
		EventRiskLimit:     0.7,
		MinConfidence:      0.4,
		DirectionThreshold: 0.2,
		SplitThreshold:     0.3,
	}
}

// Input is everything the rules read.
type Input struct {
	Symbol      string
	Verdict     models.Conclusion
	Conclusions map[models.StageName]models.Conclusion
	Signal      models.SignalOutput
	Exposure    float64
	Now         time.Time
}

type Rules struct {
	cfg Config
}

func NewRules(cfg Config) *Rules {
	if cfg.MaxPosition <= 0 {
		cfg = DefaultConfig()
	}
	return &Rules{cfg: cfg}
}

// Decide applies the risk controls, picks a direction and sizes the target.
func (r *Rules) Decide(in Input) models.Decision {
	risk := r.riskControls(in)
	direction := r.direction(in.Verdict.Score, risk)
	target := r.target(in.Verdict.Score, in.Signal.Position, risk)

	pool := strings.ToLower(strings.TrimSpace(in.Verdict.PoolAction))
	if pool != models.PoolActionRemoveIfFlat {
		pool = models.PoolActionKeep
	}
	change := target - in.Exposure

	ids := in.Verdict.EvidenceIDs
	if ids == nil {
		ids = []string{}
	}
	return models.Decision{
		ID:             uuid.NewString(),
		Symbol:         in.Symbol,
		Timestamp:      in.Now,
		Direction:      direction,
		Score:          in.Verdict.Score,
		TargetPosition: target,
		Plan: models.ExecutionPlan{
			Direction:      direction,
			TargetPosition: target,
			PositionChange: change,
			OrderType:      "limit",
			TimeInForce:    "DAY",
			SplitOrders:    math.Abs(change) > r.cfg.SplitThreshold,
			PoolAction:     pool,
		},
		Risk:        risk,
		Rationale:   in.Verdict.Thesis,
		EvidenceIDs: ids,
	}
}

func (r *Rules) riskControls(in Input) models.RiskControls {
	rc := models.RiskControls{
		MaxPosition: r.cfg.MaxPosition,
		StopLoss:    r.cfg.StopLoss,
		TakeProfit:  r.cfg.TakeProfit,
		Warnings:    []string{},
	}
	if in.Signal.Divergence > r.cfg.DivergenceLimit {
		rc.ReducePosition = true
		rc.Warnings = append(rc.Warnings, fmt.Sprintf("divergence too high: %.2f", in.Signal.Divergence))
	}
	if in.Signal.EventRisk > r.cfg.EventRiskLimit {
		rc.NoTrade = true
		rc.Warnings = append(rc.Warnings, fmt.Sprintf("event risk too high: %.2f", in.Signal.EventRisk))
	}
	avg := 0.0
	if n := len(in.Conclusions); n > 0 {
		for _, c := range in.Conclusions {
			avg += c.Confidence
		}
		avg /= float64(n)
	}
	if avg < r.cfg.MinConfidence {
		rc.NoTrade = true
		rc.Warnings = append(rc.Warnings, fmt.Sprintf("average confidence too low: %.2f", avg))
	}
	return rc
}

func (r *Rules) direction(score float64, rc models.RiskControls) models.Direction {
	switch {
	case rc.NoTrade:
		return models.DirectionNoTrade
	case score > r.cfg.DirectionThreshold:
		return models.DirectionLong
	case score < -r.cfg.DirectionThreshold:
		return models.DirectionShort
	}
	return models.DirectionFlat
}

func (r *Rules) target(score, quantPosition float64, rc models.RiskControls) float64 {
	if rc.NoTrade {
		return 0
	}
	if rc.ReducePosition {
		quantPosition *= 0.5
	}
	t := math.Abs(score) * quantPosition
	return math.Max(-rc.MaxPosition, math.Min(rc.MaxPosition, t))
}

// MemoryNote renders the decision for the memory store together with its
// retention metadata.
func MemoryNote(d models.Decision) (string, map[string]any) {
	text := fmt.Sprintf("Decision: %s %s\nTarget position: %.2f\nRationale: %s",
		d.Symbol, d.Direction, d.TargetPosition, d.Rationale)
	meta := map[string]any{
		"memory_kind":        "trading_decision",
		"decision_direction": string(d.Direction),
		"target_position":    d.TargetPosition,
		"analysis_timestamp": d.Timestamp.Format(time.RFC3339),
		"evidence_count":     len(d.EvidenceIDs),
		"retention":          "long_term",
		"importance":         0.86,
	}
	if d.Direction == models.DirectionNoTrade || d.Direction == models.DirectionFlat {
		meta["retention"] = "short_term"
		meta["importance"] = 0.68
	}
	return text, meta
}
