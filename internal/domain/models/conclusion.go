package models

import "time"

// Conclusion is the structured answer of an upstream analysis collaborator.
type Conclusion struct {
	Stage       StageName      `json:"stage"`
	Symbol      string         `json:"symbol,omitempty"`
	Score       float64        `json:"score"`
	Confidence  float64        `json:"confidence"`
	Thesis      string         `json:"thesis"`
	Action      string         `json:"action"`
	EvidenceIDs []string       `json:"evidence_ids"`
	EventRisk   float64        `json:"event_risk,omitempty"`
	PoolAction  string         `json:"pool_action,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Lite drops the collaborator payload, keeping the fields needed across restarts.
func (c Conclusion) Lite() Conclusion {
	c.Raw = nil
	c.Provider = ""
	if c.EvidenceIDs != nil {
		c.EvidenceIDs = append([]string(nil), c.EvidenceIDs...)
	}
	return c
}

// Evidence is externally sourced material queued for the expert stage.
type Evidence struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol,omitempty"`
	Broadcast   bool      `json:"broadcast"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary,omitempty"`
	Reliability float64   `json:"reliability"`
	ImageURLs   []string  `json:"image_urls,omitempty"`
	Source      string    `json:"source"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Matches reports whether the material is addressed to the symbol.
func (e Evidence) Matches(symbol string) bool {
	return e.Broadcast || e.Symbol == "" || e.Symbol == symbol
}
