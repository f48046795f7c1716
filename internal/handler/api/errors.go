package api

import (
	"errors"

	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/scheduler"
	xhttp "TradeDesk/pkg/http"
)

func mapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, scheduler.ErrInvalidSymbol),
		errors.Is(err, scheduler.ErrEmptyEvidence),
		errors.Is(err, evaluator.ErrUnknownProvider),
		errors.Is(err, ledger.ErrInvalidAccount),
		errors.Is(err, ledger.ErrPaperOnly):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, scheduler.ErrSymbolNotActive),
		errors.Is(err, scheduler.ErrRecommendationNotFound),
		errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, ledger.ErrAccountExists):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, scheduler.ErrNotConfigured):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
