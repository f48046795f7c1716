package models

import "time"

// SignalOutput is the calibrated quant signal for one symbol.
type SignalOutput struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	MarketAlpha    float64   `json:"market_alpha"`
	Gate           float64   `json:"research_gate"`
	FinalAlpha     float64   `json:"final_alpha"`
	Position       float64   `json:"position"`
	Volatility     float64   `json:"volatility"`
	FlowScore      float64   `json:"whale_flow_score"`
	ResearchFactor float64   `json:"research_score"`
	Divergence     float64   `json:"divergence"`
	EventRisk      float64   `json:"event_risk"`
}
