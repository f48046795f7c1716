package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/ledger"
	"TradeDesk/pkg/logger"
)

// CreateAccount opens a paper account that follows the desk's decisions
// and persists the desk.
func (s *Service) CreateAccount(ctx context.Context, userID, accountType, accountID string) (ledger.UserAccount, error) {
	if s.accounts == nil {
		return ledger.UserAccount{}, fmt.Errorf("accounts: %w", ErrNotConfigured)
	}
	acct, err := s.accounts.Create(userID, accountType, accountID)
	if err != nil {
		return ledger.UserAccount{}, err
	}
	s.lgr.Info("account created",
		logger.String("user", acct.UserID),
		logger.String("account_id", acct.AccountID))
	s.persist(ctx)
	return acct, nil
}

// Account returns a user's account and the ledger behind it.
func (s *Service) Account(userID string) (ledger.UserAccount, *ledger.Ledger, error) {
	if s.accounts == nil {
		return ledger.UserAccount{}, nil, fmt.Errorf("accounts: %w", ErrNotConfigured)
	}
	acct, ok := s.accounts.Get(userID)
	if !ok {
		return ledger.UserAccount{}, nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, userID)
	}
	l, _ := s.accounts.Ledger(userID)
	return acct, l, nil
}

// Departments is the per-stage view of one symbol.
type Departments struct {
	Symbol      string                                 `json:"symbol"`
	Departments map[models.StageName]models.Conclusion `json:"departments"`
	QuantOutput *models.SignalOutput                   `json:"quant_output"`
}

func (s *Service) Departments(raw string) (Departments, error) {
	c, err := s.AnalysisFor(raw)
	if err != nil {
		return Departments{}, err
	}
	return Departments{Symbol: c.Symbol, Departments: c.Conclusions, QuantOutput: c.Signal}, nil
}

// StageSetting is the effective cadence and provider of one stage.
type StageSetting struct {
	Stage           models.StageName `json:"stage"`
	IntervalMinutes int              `json:"interval_minutes"`
	Provider        string           `json:"provider"`
	Editable        bool             `json:"editable"`
}

// Settings is the effective runtime configuration. Endpoint credentials
// are redacted.
type Settings struct {
	DefaultProvider         string         `json:"default_provider"`
	EvaluatorURL            string         `json:"evaluator_url,omitempty"`
	Stages                  []StageSetting `json:"stages"`
	DecisionCooldownMinutes int            `json:"decision_cooldown_minutes"`
	StageTimeoutSeconds     int            `json:"stage_timeout_seconds"`
	SelectionMode           string         `json:"selection_mode"`
	Accounts                int            `json:"user_accounts"`
}

func (s *Service) Settings() Settings {
	s.compMu.RLock()
	ec := s.evalCfg
	s.compMu.RUnlock()

	def := ec.Default
	if def == "" {
		def = "heuristic"
	}
	out := Settings{
		DefaultProvider:         def,
		EvaluatorURL:            redactURL(ec.HTTP.BaseURL),
		DecisionCooldownMinutes: int(s.cfg.DecisionCooldown.Minutes()),
		StageTimeoutSeconds:     int(s.cfg.StageTimeout.Seconds()),
		SelectionMode:           "manual",
	}
	stages := append(append([]models.StageName{}, models.ResearchStages...), models.StageQuant, models.StageDecision)
	for _, st := range stages {
		p := ec.Stages[string(st)]
		if st == models.StageQuant {
			p = "calibration"
		} else if p == "" {
			p = def
		}
		out.Stages = append(out.Stages, StageSetting{
			Stage:           st,
			IntervalMinutes: int(s.cfg.Intervals.For(st).Minutes()),
			Provider:        p,
			Editable:        st != models.StageQuant,
		})
	}
	if s.accounts != nil {
		out.Accounts = s.accounts.Len()
	}
	return out
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.SplitN(raw, "?", 2)[0]
	}
	u.RawQuery = ""
	return u.Redacted()
}
