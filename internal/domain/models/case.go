package models

import "time"

// Case is the per-symbol working record of the pipeline.
type Case struct {
	Symbol        string                   `json:"symbol"`
	Status        string                   `json:"status"`
	CreatedAt     time.Time                `json:"created_at"`
	Conclusions   map[StageName]Conclusion `json:"department_finals"`
	Signal        *SignalOutput            `json:"quant_output,omitempty"`
	Decision      *Decision                `json:"trading_decision,omitempty"`
	LatestPrice   float64                  `json:"latest_price"`
	LatestPriceAt *time.Time               `json:"latest_market_timestamp,omitempty"`
}

func NewCase(symbol string, now time.Time) *Case {
	return &Case{
		Symbol:      symbol,
		Status:      "active",
		CreatedAt:   now,
		Conclusions: make(map[StageName]Conclusion),
	}
}

// ResearchConclusions returns the conclusions that feed the research factor.
func (c *Case) ResearchConclusions() map[StageName]Conclusion {
	out := make(map[StageName]Conclusion, len(ResearchStages))
	for _, s := range ResearchStages {
		if con, ok := c.Conclusions[s]; ok {
			out[s] = con
		}
	}
	return out
}

// Lite copies the case keeping only scalar and string fields of conclusions.
func (c *Case) Lite() *Case {
	cp := *c
	cp.Conclusions = make(map[StageName]Conclusion, len(c.Conclusions))
	for k, v := range c.Conclusions {
		cp.Conclusions[k] = v.Lite()
	}
	if c.Signal != nil {
		s := *c.Signal
		cp.Signal = &s
	}
	if c.Decision != nil {
		d := *c.Decision
		cp.Decision = &d
	}
	return &cp
}
