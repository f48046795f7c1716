package memory

import (
	"math"
	"regexp"
	"strings"
)

const defaultImportance = 0.7

var (
	actionKeywords     = []string{"buy", "sell", "long", "short", "no_trade", "reduce", "add to", "hold off"}
	riskKeywords       = []string{"risk", "drawdown", "stop loss", "stop-loss", "tail", "falsifiable", "trigger"}
	structuralKeywords = []string{"regime", "policy", "interest rate", "earnings", "guidance", "regulat", "merger", "acquisition", "industry"}

	numberPattern = regexp.MustCompile(`[-+]?\d+(\.\d+)?`)
)

// Decision is the outcome of the retention check for a write.
type Decision struct {
	Keep       bool    `json:"keep"`
	Tier       Tier    `json:"memory_type,omitempty"`
	Importance float64 `json:"importance"`
	Reason     string  `json:"reason"`
}

// Decide scores content and metadata and picks keep/discard, tier and
// importance. It depends only on its arguments.
func Decide(stage, content string, metadata map[string]any) Decision {
	text := strings.TrimSpace(content)
	if text == "" {
		return Decision{Reason: "empty_summary"}
	}

	retention := strings.ToLower(strings.TrimSpace(stringOf(metadata["retention"])))
	if retention == "discard" {
		return Decision{Reason: "explicit_discard"}
	}
	if stage == "expert" && stringOf(metadata["memory_kind"]) == "raw_upload" {
		return Decision{Reason: "raw_upload_not_persisted"}
	}

	base := defaultImportance
	if v, ok := metadata["importance"]; ok {
		if f := floatOf(v); f > 0 {
			base = f
		}
	}

	if keep, _ := metadata["force_keep"].(bool); keep {
		tier := TierShortTerm
		switch strings.ToLower(strings.TrimSpace(stringOf(metadata["memory_type"]))) {
		case "ltm", "long_term":
			tier = TierLongTerm
		}
		return Decision{
			Keep:       true,
			Tier:       tier,
			Importance: math.Max(0.55, math.Min(1, base)),
			Reason:     "forced_keep",
		}
	}

	lower := strings.ToLower(text)
	score := floatOf(metadata["score"])
	confidence := floatOf(metadata["confidence"])
	evidence := int(floatOf(metadata["evidence_count"]))

	actionHit := containsAny(lower, actionKeywords)
	riskHit := containsAny(lower, riskKeywords)
	structuralHit := containsAny(lower, structuralKeywords)

	imp := base
	imp += math.Min(0.18, math.Max(0, confidence-0.5)*0.6)
	imp += math.Min(0.14, math.Abs(score)*0.2)
	if actionHit {
		imp += 0.08
	}
	if riskHit {
		imp += 0.08
	}
	if structuralHit {
		imp += 0.08
	}
	if numberPattern.MatchString(text) {
		imp += 0.05
	}
	if evidence >= 2 {
		imp += 0.05
	}
	if len(text) < 30 {
		imp -= 0.12
	}
	imp = clamp(imp, 0, 1)

	if confidence < 0.42 && math.Abs(score) < 0.12 && !actionHit && evidence == 0 {
		return Decision{Importance: imp, Reason: "low_value_signal"}
	}

	var tier Tier
	switch retention {
	case "ltm", "long_term":
		tier = TierLongTerm
	case "stm", "short_term":
		tier = TierShortTerm
	case "ephemeral", "tmp":
		tier = TierEphemeral
	default:
		switch {
		case imp >= 0.78 || (structuralHit && confidence >= 0.55):
			tier = TierLongTerm
		case imp >= 0.48:
			tier = TierShortTerm
		default:
			tier = TierEphemeral
		}
	}
	return Decision{Keep: true, Tier: tier, Importance: imp, Reason: "heuristic_keep"}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
