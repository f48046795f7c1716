package models

import "strings"

type Horizon string

const (
	HorizonShort Horizon = "short"
	HorizonMid   Horizon = "mid"
	HorizonLong  Horizon = "long"
)

var Horizons = []Horizon{HorizonShort, HorizonMid, HorizonLong}

// Candidate is a scored selection candidate.
type Candidate struct {
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name"`
	Sector           string   `json:"sector"`
	Horizon          Horizon  `json:"horizon"`
	Score            float64  `json:"score"`
	MacroMatch       float64  `json:"macro_match"`
	IndustryTailwind float64  `json:"industry_tailwind"`
	NewsMomentum     float64  `json:"news_momentum"`
	FlowHeat         float64  `json:"whale_flow_heat"`
	RiskScore        float64  `json:"risk_score"`
	WhyNow           string   `json:"why_now"`
	Disqualifiers    []string `json:"disqualifiers,omitempty"`
}

type Recommendation struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Horizon   Horizon `json:"horizon"`
	Score     float64 `json:"score"`
	WhyNow    string  `json:"why_now"`
	RiskScore float64 `json:"risk_score"`
	Selected  bool    `json:"selected"`
}

// RecommendationPool groups recommendations by horizon.
type RecommendationPool map[Horizon][]Recommendation

func NewRecommendationPool() RecommendationPool {
	return RecommendationPool{HorizonShort: {}, HorizonMid: {}, HorizonLong: {}}
}

// Prune drops duplicates and symbols that are already active.
func (p RecommendationPool) Prune(active map[string]bool) RecommendationPool {
	out := NewRecommendationPool()
	seen := make(map[string]bool)
	for _, h := range Horizons {
		for _, item := range p[h] {
			sym := strings.ToUpper(strings.TrimSpace(item.Symbol))
			if sym == "" || active[sym] || seen[sym] {
				continue
			}
			seen[sym] = true
			item.Symbol = sym
			item.Selected = false
			out[h] = append(out[h], item)
		}
	}
	return out
}

// Contains reports whether symbol is recommended in any horizon.
func (p RecommendationPool) Contains(symbol string) bool {
	for _, items := range p {
		for _, item := range items {
			if strings.EqualFold(item.Symbol, symbol) {
				return true
			}
		}
	}
	return false
}

// Without removes symbol from every horizon.
func (p RecommendationPool) Without(symbol string) RecommendationPool {
	out := NewRecommendationPool()
	for _, h := range Horizons {
		for _, item := range p[h] {
			if !strings.EqualFold(item.Symbol, symbol) {
				out[h] = append(out[h], item)
			}
		}
	}
	return out
}

// Count returns the total number of recommendations.
func (p RecommendationPool) Count() int {
	n := 0
	for _, items := range p {
		n += len(items)
	}
	return n
}
