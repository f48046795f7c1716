// Package evaluator defines the upstream analysis collaborator and the
// providers that implement it.
package evaluator

import (
	"context"
	"errors"
	"time"

	"TradeDesk/internal/domain/models"
)

var (
	ErrUnknownProvider = errors.New("evaluator: unknown provider")
	ErrNoEvaluator     = errors.New("evaluator: no evaluator for stage")
	ErrRateLimited     = errors.New("evaluator: rate limited")
)

// Request is the context bundle handed to an evaluator.
type Request struct {
	Stage      models.StageName                       `json:"stage"`
	Symbol     string                                 `json:"symbol,omitempty"`
	Memory     string                                 `json:"memory"`
	Upstream   map[models.StageName]models.Conclusion `json:"upstream,omitempty"`
	Evidence   []models.Evidence                      `json:"evidence,omitempty"`
	Signal     *models.SignalOutput                   `json:"quant_output,omitempty"`
	Market     *models.MarketSnapshot                 `json:"market,omitempty"`
	Exposure   float64                                `json:"current_position"`
	FocusHints []string                               `json:"focus_hints,omitempty"`
	AsOf       time.Time                              `json:"as_of"`
}

// Evaluator produces a structured conclusion for one stage. Implementations
// may fail or time out; callers treat every error as a stage failure.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, req Request) (models.Conclusion, error)
}

// normalize clamps collaborator output into its documented ranges.
func normalize(c models.Conclusion, req Request, provider string, now time.Time) models.Conclusion {
	c.Stage = req.Stage
	c.Symbol = req.Symbol
	c.Score = clamp(c.Score, -1, 1)
	c.Confidence = clamp(c.Confidence, 0, 1)
	c.EventRisk = clamp(c.EventRisk, 0, 1)
	c.Provider = provider
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.EvidenceIDs == nil {
		c.EvidenceIDs = []string{}
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
