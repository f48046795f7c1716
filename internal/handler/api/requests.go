package api

type SymbolRequest struct {
	Symbol string `json:"symbol" validate:"required,max=16"`
}

type EvidenceRequest struct {
	Symbol      string   `json:"symbol" validate:"max=16"`
	Broadcast   bool     `json:"broadcast"`
	Content     string   `json:"content" validate:"max=20000"`
	Summary     string   `json:"summary" validate:"max=2000"`
	Reliability float64  `json:"reliability" validate:"omitempty,gte=0,lte=1"`
	ImageURLs   []string `json:"image_urls" validate:"max=8,dive,url"`
	Source      string   `json:"source" default:"api" validate:"max=64"`
}

// ReloadRequest overrides the configured provider choice. Empty fields
// keep the loaded configuration.
type ReloadRequest struct {
	Default string            `json:"default" validate:"max=32"`
	Stages  map[string]string `json:"stages"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol"`
	Since  string `query:"since"`
}

type JournalRequest struct {
	Symbol string `query:"symbol"`
	Limit  int    `query:"limit" default:"100" validate:"min=1,max=1000"`
}

// AccountRequest opens a user account. Real broker accounts are rejected
// until a broker integration exists.
type AccountRequest struct {
	UserID      string `json:"user_id" validate:"required,max=64"`
	AccountType string `json:"account_type" default:"paper" validate:"oneof=paper real"`
	AccountID   string `json:"account_id" validate:"max=64"`
}
