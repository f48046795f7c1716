package api

import (
	"maps"

	"TradeDesk/internal/scheduler"
	xhttp "TradeDesk/pkg/http"
	xlogger "TradeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AddStock confirms the symbol has a quote before adding it to the pool.
func (h *DeskHandler) AddStock(c echo.Context) error {
	req := &SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym, err := scheduler.NormalizeSymbol(req.Symbol)
	if err != nil {
		return h.fail(c, "add stock", err)
	}
	ctx := c.Request().Context()
	if h.market != nil {
		if _, err := h.market.Quote(ctx, sym); err != nil {
			h.logger.Warn("quote check failed", xlogger.String("symbol", sym), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("no market data for %s", sym).WithError(err))
		}
	}
	added, err := h.desk.AddSymbol(ctx, sym)
	if err != nil {
		return h.fail(c, "add stock", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"symbol": sym, "added": added})
}

func (h *DeskHandler) RemoveStock(c echo.Context) error {
	req := &SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.desk.RemoveSymbol(c.Request().Context(), req.Symbol); err != nil {
		return h.fail(c, "remove stock", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"removed": true})
}

func (h *DeskHandler) ListStocks(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]any{"stocks": h.desk.Active()})
}

func (h *DeskHandler) Start(c echo.Context) error {
	if err := h.desk.Start(); err != nil {
		return h.fail(c, "start", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"running": true})
}

func (h *DeskHandler) Stop(c echo.Context) error {
	h.desk.Stop(c.Request().Context())
	return xhttp.SuccessResponse(c, map[string]any{"running": false})
}

func (h *DeskHandler) RunOnce(c echo.Context) error {
	id, err := h.desk.RunOnce(c.Request().Context())
	if err != nil {
		return h.fail(c, "run once", err)
	}
	return xhttp.AcceptedResponse(c, map[string]any{"job_id": id})
}

func (h *DeskHandler) RunSelection(c echo.Context) error {
	id, err := h.desk.RunSelection(c.Request().Context())
	if err != nil {
		return h.fail(c, "run selection", err)
	}
	return xhttp.AcceptedResponse(c, map[string]any{"job_id": id})
}

// Reload rebuilds the evaluators from the loaded config with the request's
// provider overrides applied.
func (h *DeskHandler) Reload(c echo.Context) error {
	req := &ReloadRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cfg := h.evalCfg
	cfg.Stages = maps.Clone(h.evalCfg.Stages)
	if req.Default != "" {
		cfg.Default = req.Default
	}
	if len(req.Stages) > 0 {
		if cfg.Stages == nil {
			cfg.Stages = make(map[string]string, len(req.Stages))
		}
		maps.Copy(cfg.Stages, req.Stages)
	}
	if err := h.desk.Reload(c.Request().Context(), cfg); err != nil {
		return h.fail(c, "reload", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"reloaded": true, "default": cfg.Default, "stages": cfg.Stages})
}

func (h *DeskHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Status())
}

func (h *DeskHandler) Progress(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Progress())
}

func (h *DeskHandler) Jobs(c echo.Context) error {
	jobs := h.desk.Jobs()
	return xhttp.ListResponse(c, jobs, int64(len(jobs)))
}

func (h *DeskHandler) Job(c echo.Context) error {
	job, err := h.desk.Job(c.Param("id"))
	if err != nil {
		return h.fail(c, "job", err)
	}
	return xhttp.SuccessResponse(c, job)
}
