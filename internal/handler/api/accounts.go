package api

import (
	"net/http"
	"time"

	"TradeDesk/internal/scheduler"
	xhttp "TradeDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

func (h *DeskHandler) CreateAccount(c echo.Context) error {
	req := &AccountRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	acct, err := h.desk.CreateAccount(c.Request().Context(), req.UserID, req.AccountType, req.AccountID)
	if err != nil {
		return h.fail(c, "create account", err)
	}
	return xhttp.DataResponse(c, http.StatusCreated, acct)
}

func (h *DeskHandler) UserAccount(c echo.Context) error {
	acct, _, err := h.desk.Account(c.Param("id"))
	if err != nil {
		return h.fail(c, "account", err)
	}
	return xhttp.SuccessResponse(c, acct)
}

func (h *DeskHandler) UserAccountStatus(c echo.Context) error {
	_, l, err := h.desk.Account(c.Param("id"))
	if err != nil {
		return h.fail(c, "account status", err)
	}
	return xhttp.SuccessResponse(c, l.AccountSummary())
}

// UserTrades lists a user's orders, optionally for one symbol.
func (h *DeskHandler) UserTrades(c echo.Context) error {
	_, l, err := h.desk.Account(c.Param("id"))
	if err != nil {
		return h.fail(c, "account trades", err)
	}
	symbol := ""
	if raw := c.QueryParam("symbol"); raw != "" {
		if symbol, err = scheduler.NormalizeSymbol(raw); err != nil {
			return h.fail(c, "account trades", err)
		}
	}
	orders := l.TradeHistory(symbol, time.Time{})
	return xhttp.ListResponse(c, orders, int64(len(orders)))
}

func (h *DeskHandler) CurrentConfig(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Settings())
}

func (h *DeskHandler) Departments(c echo.Context) error {
	d, err := h.desk.Departments(c.Param("symbol"))
	if err != nil {
		return h.fail(c, "departments", err)
	}
	return xhttp.SuccessResponse(c, d)
}
