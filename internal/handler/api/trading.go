package api

import (
	"net/http"
	"time"

	"TradeDesk/internal/scheduler"
	xhttp "TradeDesk/pkg/http"
	"TradeDesk/pkg/util"

	"github.com/labstack/echo/v4"
)

func (h *DeskHandler) Account(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ledger.AccountSummary())
}

func (h *DeskHandler) Positions(c echo.Context) error {
	pos := h.ledger.Positions()
	return xhttp.ListResponse(c, pos, int64(len(pos)))
}

// History lists ledger orders, optionally for one symbol and from a time on.
func (h *DeskHandler) History(c echo.Context) error {
	req := &HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := ""
	if req.Symbol != "" {
		sym, err := scheduler.NormalizeSymbol(req.Symbol)
		if err != nil {
			return h.fail(c, "history", err)
		}
		symbol = sym
	}
	var since time.Time
	if req.Since != "" {
		t, ok := util.ParseTime(req.Since)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("since %q is not a time", req.Since))
		}
		since = t
	}
	orders := h.ledger.TradeHistory(symbol, since)
	return xhttp.ListResponse(c, orders, int64(len(orders)))
}

func (h *DeskHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ledger.PortfolioPerformance())
}

// SymbolPerformance defaults to the active pool when no symbols are given.
func (h *DeskHandler) SymbolPerformance(c echo.Context) error {
	var symbols []string
	for _, raw := range util.SplitList(c.QueryParam("symbols")) {
		sym, err := scheduler.NormalizeSymbol(raw)
		if err != nil {
			return h.fail(c, "symbol performance", err)
		}
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		symbols = h.desk.Active()
	}
	return xhttp.SuccessResponse(c, h.ledger.SymbolPerformance(symbols))
}

func (h *DeskHandler) Journal(c echo.Context) error {
	if h.journal == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("trade journal is not configured"))
	}
	req := &JournalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.journal.Trades(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "journal", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Quote reads through the market chain and its cache.
func (h *DeskHandler) Quote(c echo.Context) error {
	sym, err := scheduler.NormalizeSymbol(c.Param("symbol"))
	if err != nil {
		return h.fail(c, "quote", err)
	}
	if h.market == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("market data is not configured"))
	}
	snap, err := h.market.Quote(c.Request().Context(), sym)
	if err != nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_UPSTREAM", "symbol", "no quote for "+sym, http.StatusBadGateway).WithError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}
