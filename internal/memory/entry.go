package memory

import (
	"maps"
	"strconv"
	"time"
)

type Tier string

const (
	TierLongTerm  Tier = "long_term"
	TierShortTerm Tier = "short_term"
	TierEphemeral Tier = "ephemeral"
)

type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeSymbol Scope = "symbol"
)

// Entry is one memory record. Content is immutable; importance, access count
// and metadata change through reads, feedback and retention bookkeeping.
type Entry struct {
	ID          string         `json:"entry_id"`
	Tier        Tier           `json:"memory_type"`
	Scope       Scope          `json:"scope"`
	Stage       string         `json:"department"`
	Symbol      string         `json:"stock_symbol,omitempty"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at"`
	Importance  float64        `json:"importance"`
	AccessCount int            `json:"access_count"`
}

func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

func (e *Entry) clone() Entry {
	cp := *e
	cp.Metadata = maps.Clone(e.Metadata)
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		cp.ExpiresAt = &t
	}
	return cp
}

func floatOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return 0
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
