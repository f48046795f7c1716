package selection

import (
	"math"
	"strings"
)

var themeKeywords = map[string][]string{
	"technology":    {"ai", "cloud", "software", "chip", "semiconductor", "datacenter"},
	"semiconductor": {"chip", "semiconductor", "gpu", "foundry", "memory"},
	"financial":     {"yield", "bank", "credit", "rate cut", "rate hike", "liquidity"},
	"energy":        {"oil", "gas", "opec", "crude", "refinery"},
	"healthcare":    {"drug", "fda", "biotech", "clinical", "pharma"},
	"industrial":    {"manufacturing", "freight", "aerospace", "defense", "infrastructure"},
	"consumer":      {"retail", "consumer", "ecommerce", "spending", "travel"},
	"materials":     {"copper", "steel", "chemical", "mining", "commodity"},
	"utilities":     {"power", "grid", "utility", "electricity"},
	"real_estate":   {"reit", "housing", "mortgage", "office", "property"},
}

var (
	themePositive = []string{"beat", "upgrade", "growth", "tailwind", "momentum", "risk-on"}
	themeNegative = []string{"recession", "slowdown", "cut guidance", "downgrade", "risk-off", "selloff"}
)

// ThemeBias maps research text to a per-sector bias in [-0.35, 0.35].
func ThemeBias(text string) map[string]float64 {
	t := strings.ToLower(text)
	sentiment := 0.0
	for _, w := range themePositive {
		sentiment += 0.03 * float64(strings.Count(t, w))
	}
	for _, w := range themeNegative {
		sentiment -= 0.03 * float64(strings.Count(t, w))
	}
	out := make(map[string]float64, len(sectorUniverse))
	for _, sec := range sectors() {
		raw := sentiment * 0.35
		for _, kw := range themeKeywords[sec] {
			raw += 0.04 * float64(strings.Count(t, kw))
		}
		out[sec] = math.Max(-0.35, math.Min(0.35, raw))
	}
	return out
}
