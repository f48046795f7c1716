package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	domrepo "TradeDesk/internal/domain/repository"
	"TradeDesk/internal/scheduler"
	pkgkafka "TradeDesk/pkg/kafka"
	"TradeDesk/pkg/logger"
)

// EvidenceSink accepts research material for the expert stage.
type EvidenceSink interface {
	SubmitEvidence(ctx context.Context, ev models.Evidence) (models.Evidence, error)
}

// EvidenceMessage is the wire form on the evidence topic.
type EvidenceMessage struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Broadcast   bool     `json:"broadcast"`
	Content     string   `json:"content"`
	Summary     string   `json:"summary"`
	Reliability float64  `json:"reliability"`
	ImageURLs   []string `json:"image_urls"`
	Source      string   `json:"source"`
	SubmittedAt int64    `json:"submitted_at"`
}

// EvidenceConsumer feeds the evidence topic into the expert inbox.
// Malformed messages are logged and acknowledged so they never block the
// partition.
type EvidenceConsumer struct {
	topic   string
	sink    EvidenceSink
	metrics domrepo.Metrics
	lgr     *logger.Logger
}

func NewEvidenceConsumer(topic string, sink EvidenceSink, metrics domrepo.Metrics, lgr *logger.Logger) *EvidenceConsumer {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &EvidenceConsumer{topic: topic, sink: sink, metrics: metrics, lgr: lgr}
}

func (h *EvidenceConsumer) Topic() string { return h.topic }

func (h *EvidenceConsumer) Handle(ctx context.Context, b []byte) error {
	var m EvidenceMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.reject("decode", err)
		return nil
	}
	ev := models.Evidence{
		ID:          m.ID,
		Symbol:      strings.TrimSpace(m.Symbol),
		Broadcast:   m.Broadcast || strings.TrimSpace(m.Symbol) == "",
		Content:     m.Content,
		Summary:     m.Summary,
		Reliability: m.Reliability,
		ImageURLs:   m.ImageURLs,
		Source:      m.Source,
	}
	if ev.Source == "" {
		ev.Source = "kafka"
	}
	if m.SubmittedAt > 0 {
		ts := m.SubmittedAt
		if ts > 1e11 {
			ts /= 1000
		}
		ev.SubmittedAt = time.Unix(ts, 0).UTC()
	}

	if _, err := h.sink.SubmitEvidence(ctx, ev); err != nil {
		if errors.Is(err, scheduler.ErrInvalidSymbol) || errors.Is(err, scheduler.ErrEmptyEvidence) {
			h.reject("invalid", err)
			return nil
		}
		return err
	}
	return nil
}

func (h *EvidenceConsumer) reject(kind string, err error) {
	if h.metrics != nil {
		h.metrics.RecordError("evidence_consumer", kind)
	}
	h.lgr.Warn("evidence message rejected", logger.String("topic", h.topic), logger.String("kind", kind), logger.Error(err))
}

var _ pkgkafka.MessageHandler = (*EvidenceConsumer)(nil)
