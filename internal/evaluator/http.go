package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/service/ratelimit"
	xhttp "TradeDesk/pkg/http"
	"TradeDesk/pkg/logger"
)

// HTTP calls a remote analysis service: POST {base}/evaluate/{stage}.
// Each stage has its own token bucket.
type HTTP struct {
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	cfg     HTTPConfig
	lgr     *logger.Logger
	now     func() time.Time
}

type httpConclusion struct {
	Score       float64  `json:"score"`
	Confidence  float64  `json:"confidence"`
	Thesis      string   `json:"thesis"`
	Action      string   `json:"action"`
	EvidenceIDs []string `json:"evidence_ids"`
	EventRisk   float64  `json:"event_risk"`
	PoolAction  string   `json:"pool_action"`
}

func NewHTTP(cfg HTTPConfig, lgr *logger.Logger) (*HTTP, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("evaluator http: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 0.5
	}
	if cfg.Burst < 1 {
		cfg.Burst = 4
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &HTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		limiter: ratelimit.New(),
		cfg:     cfg,
		lgr:     lgr,
		now:     time.Now,
	}, nil
}

func (h *HTTP) Name() string { return ProviderHTTP }

func (h *HTTP) Evaluate(ctx context.Context, req Request) (models.Conclusion, error) {
	if !h.limiter.Allow(string(req.Stage), h.cfg.Burst, h.cfg.RatePerSecond) {
		return models.Conclusion{}, fmt.Errorf("stage %s: %w", req.Stage, ErrRateLimited)
	}
	var out httpConclusion
	path := "/evaluate/" + string(req.Stage)
	if err := h.postJSONWithRetry(ctx, path, req, &out, h.cfg.Retries+1); err != nil {
		h.lgr.Warn("remote evaluation failed",
			logger.String("stage", string(req.Stage)),
			logger.String("symbol", req.Symbol),
			logger.Error(err))
		return models.Conclusion{}, err
	}
	return normalize(models.Conclusion{
		Score:       out.Score,
		Confidence:  out.Confidence,
		Thesis:      out.Thesis,
		Action:      out.Action,
		EvidenceIDs: out.EvidenceIDs,
		EventRisk:   out.EventRisk,
		PoolAction:  strings.ToLower(strings.TrimSpace(out.PoolAction)),
	}, req, ProviderHTTP, h.now()), nil
}

func (h *HTTP) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	err := h.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    h.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with a linear backoff.
func (h *HTTP) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return h.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = h.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
