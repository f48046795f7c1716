package api

import (
	"strings"

	"TradeDesk/internal/domain/models"
	xhttp "TradeDesk/pkg/http"

	"github.com/labstack/echo/v4"
)

func (h *DeskHandler) Analysis(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Analysis())
}

func (h *DeskHandler) AnalysisFor(c echo.Context) error {
	cs, err := h.desk.AnalysisFor(c.Param("symbol"))
	if err != nil {
		return h.fail(c, "analysis", err)
	}
	return xhttp.SuccessResponse(c, cs)
}

func (h *DeskHandler) Recommendations(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Recommendations())
}

func (h *DeskHandler) SelectRecommendation(c echo.Context) error {
	req := &SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.desk.SelectRecommendation(c.Request().Context(), req.Symbol); err != nil {
		return h.fail(c, "select recommendation", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{"stocks": h.desk.Active()})
}

// SubmitEvidence queues material. A request without a symbol is broadcast.
func (h *DeskHandler) SubmitEvidence(c echo.Context) error {
	req := &EvidenceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ev, err := h.desk.SubmitEvidence(c.Request().Context(), models.Evidence{
		Symbol:      req.Symbol,
		Broadcast:   req.Broadcast || strings.TrimSpace(req.Symbol) == "",
		Content:     req.Content,
		Summary:     req.Summary,
		Reliability: req.Reliability,
		ImageURLs:   req.ImageURLs,
		Source:      req.Source,
	})
	if err != nil {
		return h.fail(c, "submit evidence", err)
	}
	return xhttp.SuccessResponse(c, ev)
}

func (h *DeskHandler) ListEvidence(c echo.Context) error {
	items := h.desk.Evidence()
	return xhttp.ListResponse(c, items, int64(len(items)))
}

func (h *DeskHandler) Train(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.desk.Train(c.Request().Context()))
}

func (h *DeskHandler) CalibrationReport(c echo.Context) error {
	rep, ok := h.desk.CalibrationReport()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no calibration report yet"))
	}
	return xhttp.SuccessResponse(c, rep)
}
