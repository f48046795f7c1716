package memory

import (
	"maps"
	"math"
	"strings"
	"time"
)

// ApplyFeedback nudges the importance of entries related to symbol by the
// P&L ratio observed at asOf. Short exposure inverts the sign and entries
// older at asOf move less. A zero asOf means now. It returns the number of
// entries updated.
func (s *Store) ApplyFeedback(symbol string, pnlRatio float64, direction string, asOf time.Time) int {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0
	}
	p := clamp(pnlRatio, -1, 1)
	if strings.EqualFold(direction, "SHORT") {
		p = -p
	}
	deltaBase := clamp(p*0.25, -0.10, 0.10)
	if math.Abs(deltaBase) < 0.002 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := asOf
	if now.IsZero() {
		now = s.now()
	}
	updated := 0
	for _, e := range s.entries {
		related := e.Symbol == symbol || (e.Scope == ScopeGlobal && s.global[e.Stage])
		if !related {
			continue
		}
		age := max(now.Sub(e.CreatedAt), 0)
		if age > s.cfg.FeedbackMaxAge {
			continue
		}
		weight := 1 / (1 + age.Hours()/s.cfg.FeedbackHalfLife.Hours())
		delta := deltaBase * weight
		e.Importance = clamp(e.Importance+delta, 0, 1)

		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		prev, _ := e.Metadata["feedback"].(map[string]any)
		fb := maps.Clone(prev)
		if fb == nil {
			fb = make(map[string]any)
		}
		fb["last_update_at"] = now.Format(time.RFC3339)
		fb["last_symbol"] = symbol
		fb["last_direction"] = strings.ToUpper(direction)
		fb["last_pnl_ratio"] = pnlRatio
		fb["updates"] = int(floatOf(fb["updates"])) + 1
		fb["importance_delta"] = floatOf(fb["importance_delta"]) + delta
		e.Metadata["feedback"] = fb
		updated++
	}
	s.pruneLocked(now)
	return updated
}
