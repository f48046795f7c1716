package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
)

var (
	positiveWords = []string{"beat", "upgrade", "growth", "tailwind", "momentum", "strong", "raise", "bullish", "risk-on", "record"}
	negativeWords = []string{"miss", "downgrade", "slowdown", "recession", "weak", "cut guidance", "bearish", "risk-off", "selloff", "lawsuit"}
	eventWords    = []string{"earnings", "fda", "lawsuit", "investigation", "merger", "guidance", "default", "halt"}
)

// Heuristic is an offline evaluator scoring from market moves, evidence tone
// and upstream conclusions. It keeps the pipeline usable without a remote
// analysis service.
type Heuristic struct {
	now func() time.Time
}

func NewHeuristic() *Heuristic { return &Heuristic{now: time.Now} }

func (h *Heuristic) Name() string { return ProviderHeuristic }

func (h *Heuristic) Evaluate(ctx context.Context, req Request) (models.Conclusion, error) {
	if err := ctx.Err(); err != nil {
		return models.Conclusion{}, err
	}
	var c models.Conclusion
	if req.Stage == models.StageDecision {
		c = h.decide(req)
	} else {
		c = h.research(req)
	}
	return normalize(c, req, ProviderHeuristic, h.now()), nil
}

func (h *Heuristic) research(req Request) models.Conclusion {
	var sb strings.Builder
	sb.WriteString(req.Memory)
	ids := make([]string, 0, len(req.Evidence))
	weighted, weights := 0.0, 0.0
	for _, ev := range req.Evidence {
		text := ev.Content + " " + ev.Summary
		sb.WriteString("\n")
		sb.WriteString(text)
		r := ev.Reliability
		if r <= 0 {
			r = 0.5
		}
		weighted += r * tone(text)
		weights += r
		ids = append(ids, ev.ID)
	}
	all := sb.String()

	evidenceTone := tone(all)
	if weights > 0 {
		evidenceTone = weighted / weights
	}

	move := 0.0
	if req.Market != nil {
		move = math.Tanh(req.Market.ChangePercent / 3)
	}

	var score float64
	switch req.Stage {
	case models.StageMacro:
		score = tone(all)
	case models.StageExpert:
		score = evidenceTone
	default:
		score = 0.6*move + 0.4*evidenceTone
	}

	confidence := 0.35 + 0.1*math.Min(4, float64(len(req.Evidence)))
	if req.Market != nil {
		confidence += 0.15
	}
	confidence = math.Min(0.9, confidence)

	return models.Conclusion{
		Score:       score,
		Confidence:  confidence,
		Thesis:      thesis(req, score, move),
		Action:      action(score),
		EvidenceIDs: ids,
		EventRisk:   math.Min(1, 0.2*float64(countAny(strings.ToLower(all), eventWords))),
	}
}

func (h *Heuristic) decide(req Request) models.Conclusion {
	num, den, confSum, eventRisk := 0.0, 0.0, 0.0, 0.0
	for _, c := range req.Upstream {
		num += c.Confidence * c.Score
		den += c.Confidence
		confSum += c.Confidence
		eventRisk = math.Max(eventRisk, c.EventRisk)
	}
	research := 0.0
	if den > 0 {
		research = num / den
	}
	confidence := 0.0
	if n := len(req.Upstream); n > 0 {
		confidence = confSum / float64(n)
	}

	score := research
	if req.Signal != nil {
		score = 0.5*research + 0.5*math.Tanh(req.Signal.FinalAlpha*5)
		eventRisk = math.Max(eventRisk, req.Signal.EventRisk)
	}

	pool := models.PoolActionKeep
	if score < -0.5 {
		pool = models.PoolActionRemoveIfFlat
	}
	ids := make([]string, 0)
	for _, c := range req.Upstream {
		ids = append(ids, c.EvidenceIDs...)
	}
	return models.Conclusion{
		Score:       score,
		Confidence:  confidence,
		Thesis:      fmt.Sprintf("%s: research %.2f across %d stages, blended score %.2f", req.Symbol, research, len(req.Upstream), score),
		Action:      action(score),
		EvidenceIDs: ids,
		EventRisk:   eventRisk,
		PoolAction:  pool,
	}
}

// tone is a bounded lexical sentiment in [-1, 1].
func tone(text string) float64 {
	t := strings.ToLower(text)
	pos := countAny(t, positiveWords)
	neg := countAny(t, negativeWords)
	return float64(pos-neg) / float64(pos+neg+2)
}

func countAny(text string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(text, w)
	}
	return n
}

func action(score float64) string {
	switch {
	case score > 0.2:
		return "buy"
	case score < -0.2:
		return "sell"
	}
	return "hold"
}

func thesis(req Request, score, move float64) string {
	subject := req.Symbol
	if subject == "" {
		subject = "market"
	}
	return fmt.Sprintf("%s view on %s: score %.2f (price move %.2f, %d evidence items)",
		req.Stage, subject, score, move, len(req.Evidence))
}
