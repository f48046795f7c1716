package selection

import (
	"fmt"
	"strings"

	"TradeDesk/internal/domain/models"
)

// Quotas caps picks per horizon before the backfill pass.
type Quotas map[models.Horizon]int

func DefaultQuotas() Quotas {
	return Quotas{models.HorizonShort: 3, models.HorizonMid: 3, models.HorizonLong: 2}
}

// Pick chooses total candidates honoring the horizon quotas. Symbols in
// exclude are skipped; symbols in recent are only used when the fresh list
// cannot fill total.
func Pick(sorted []models.Candidate, exclude, recent map[string]bool, quotas Quotas, total int) []models.Candidate {
	fresh := make([]models.Candidate, 0, len(sorted))
	var stale []models.Candidate
	for _, c := range sorted {
		sym := strings.ToUpper(c.Symbol)
		if exclude[sym] {
			continue
		}
		if recent[sym] {
			stale = append(stale, c)
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) < total {
		fresh = append(fresh, stale...)
	}

	picked := make([]models.Candidate, 0, total)
	used := make(map[string]bool)
	count := make(map[models.Horizon]int)
	for _, c := range fresh {
		if len(picked) >= total {
			break
		}
		if used[c.Symbol] || count[c.Horizon] >= quotas[c.Horizon] {
			continue
		}
		count[c.Horizon]++
		used[c.Symbol] = true
		picked = append(picked, c)
	}
	for _, c := range fresh {
		if len(picked) >= total {
			break
		}
		if !used[c.Symbol] {
			used[c.Symbol] = true
			picked = append(picked, c)
		}
	}
	return picked
}

// Group turns picks into a recommendation pool keyed by horizon.
func Group(picks []models.Candidate) models.RecommendationPool {
	pool := models.NewRecommendationPool()
	for _, c := range picks {
		h := c.Horizon
		if _, ok := pool[h]; !ok {
			h = models.HorizonMid
		}
		name := c.Name
		if name == "" {
			name = c.Symbol
		}
		pool[h] = append(pool[h], models.Recommendation{
			Symbol:    strings.ToUpper(c.Symbol),
			Name:      name,
			Horizon:   h,
			Score:     c.Score,
			WhyNow:    c.WhyNow,
			RiskScore: c.RiskScore,
		})
	}
	return pool
}

// Symbols lists the picked identifiers in order.
func Symbols(picks []models.Candidate) []string {
	out := make([]string, 0, len(picks))
	for _, c := range picks {
		out = append(out, strings.ToUpper(c.Symbol))
	}
	return out
}

// MemoryNote renders a selection batch for the memory store.
func MemoryNote(source string, picks []models.Candidate) (string, map[string]any) {
	var b strings.Builder
	fmt.Fprintf(&b, "Selection batch (%s): %d candidates\n", source, len(picks))
	for _, c := range picks {
		fmt.Fprintf(&b, "- %s [%s] score=%.3f risk=%.2f %s\n", c.Symbol, c.Horizon, c.Score, c.RiskScore, c.WhyNow)
	}
	importance := 0.62
	if len(picks) >= 8 {
		importance = 0.74
	}
	return strings.TrimSpace(b.String()), map[string]any{
		"memory_kind":     "stock_selection_batch",
		"candidate_count": len(picks),
		"source":          source,
		"retention":       "short_term",
		"importance":      importance,
	}
}
