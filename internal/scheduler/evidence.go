package scheduler

import (
	"context"
	"strings"

	"TradeDesk/internal/domain/models"
	"TradeDesk/pkg/logger"

	"github.com/google/uuid"
)

// SubmitEvidence queues material for the expert stage. The oldest items
// are dropped once the inbox is full.
func (s *Service) SubmitEvidence(_ context.Context, ev models.Evidence) (models.Evidence, error) {
	if strings.TrimSpace(ev.Content) == "" && len(ev.ImageURLs) == 0 {
		return models.Evidence{}, ErrEmptyEvidence
	}
	if !ev.Broadcast {
		sym, err := NormalizeSymbol(ev.Symbol)
		if err != nil {
			return models.Evidence{}, err
		}
		ev.Symbol = sym
	} else {
		ev.Symbol = ""
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.SubmittedAt.IsZero() {
		ev.SubmittedAt = s.now()
	}
	if ev.Reliability <= 0 || ev.Reliability > 1 {
		ev.Reliability = 0.5
	}
	if ev.Source == "" {
		ev.Source = "manual"
	}

	s.mu.Lock()
	s.inbox = append(s.inbox, ev)
	if extra := len(s.inbox) - s.cfg.InboxSize; extra > 0 {
		s.inbox = append([]models.Evidence(nil), s.inbox[extra:]...)
	}
	n := len(s.inbox)
	s.mu.Unlock()

	s.lgr.Info("evidence queued",
		logger.String("id", ev.ID),
		logger.String("symbol", ev.Symbol),
		logger.Bool("broadcast", ev.Broadcast),
		logger.Int("inbox", n))
	return ev, nil
}

// Evidence lists the queued materials, oldest first.
func (s *Service) Evidence() []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Evidence{}, s.inbox...)
}

func (s *Service) materialsLocked(symbol string) []models.Evidence {
	var out []models.Evidence
	for _, ev := range s.inbox {
		if ev.Matches(symbol) {
			out = append(out, ev)
		}
	}
	return out
}

// consumeEvidence drops the symbol-addressed items that were used.
// Broadcast items stay for the other symbols.
func (s *Service) consumeEvidence(symbol string, used []models.Evidence) {
	if len(used) == 0 {
		return
	}
	ids := make(map[string]bool, len(used))
	for _, ev := range used {
		if !ev.Broadcast && ev.Symbol == symbol {
			ids[ev.ID] = true
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.inbox[:0:0]
	for _, ev := range s.inbox {
		if !ids[ev.ID] {
			kept = append(kept, ev)
		}
	}
	s.inbox = kept
}
