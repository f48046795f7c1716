package api

import (
	"context"
	"net/http"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/scheduler"
	xhttp "TradeDesk/pkg/http"
	xlogger "TradeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Quoter resolves the latest snapshot of a symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

// TradeJournal reads the durable fill history.
type TradeJournal interface {
	Trades(ctx context.Context, symbol string, limit int) ([]models.TradeRecord, error)
}

// DeskHandler serves the control surface of the desk.
type DeskHandler struct {
	logger  *xlogger.Logger
	desk    *scheduler.Service
	ledger  *ledger.Ledger
	market  Quoter
	journal TradeJournal
	evalCfg evaluator.Config
	started time.Time
}

type Option func(*DeskHandler)

// WithJournal enables /api/trading/journal.
func WithJournal(j TradeJournal) Option {
	return func(h *DeskHandler) { h.journal = j }
}

func NewDeskHandler(logger *xlogger.Logger, desk *scheduler.Service, l *ledger.Ledger, market Quoter, evalCfg evaluator.Config, opts ...Option) *DeskHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &DeskHandler{
		logger:  logger,
		desk:    desk,
		ledger:  l,
		market:  market,
		evalCfg: evalCfg,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DeskHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")

	stocks := g.Group("/stocks")
	stocks.POST("/add", h.AddStock)
	stocks.POST("/remove", h.RemoveStock)
	stocks.GET("/list", h.ListStocks)

	sys := g.Group("/system")
	sys.POST("/start", h.Start)
	sys.POST("/stop", h.Stop)
	sys.POST("/run-once", h.RunOnce)
	sys.POST("/run-selection", h.RunSelection)
	sys.POST("/reload", h.Reload)
	sys.GET("/status", h.Status)
	sys.GET("/progress", h.Progress)
	sys.GET("/jobs", h.Jobs)
	sys.GET("/jobs/:id", h.Job)

	g.GET("/analysis", h.Analysis)
	g.GET("/analysis/:symbol", h.AnalysisFor)
	g.GET("/departments/:symbol", h.Departments)
	g.GET("/recommendations", h.Recommendations)
	g.POST("/recommendations/select", h.SelectRecommendation)

	g.POST("/evidence", h.SubmitEvidence)
	g.GET("/evidence", h.ListEvidence)

	g.POST("/calibration/train", h.Train)
	g.GET("/calibration/report", h.CalibrationReport)

	trading := g.Group("/trading")
	trading.GET("/account", h.Account)
	trading.GET("/positions", h.Positions)
	trading.GET("/history", h.History)
	trading.GET("/performance", h.Performance)
	trading.GET("/performance/symbols", h.SymbolPerformance)
	trading.GET("/journal", h.Journal)

	account := g.Group("/account")
	account.POST("/create", h.CreateAccount)
	account.GET("/:id", h.UserAccount)
	account.GET("/:id/status", h.UserAccountStatus)
	account.GET("/:id/trades", h.UserTrades)

	g.GET("/config/current", h.CurrentConfig)
	g.GET("/market/quote/:symbol", h.Quote)
}

func (h *DeskHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"running": h.desk.Running(),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// fail logs server side failures and renders err.
func (h *DeskHandler) fail(c echo.Context, op string, err error) error {
	appErr := mapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
