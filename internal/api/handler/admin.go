package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/api"
	"github.com/sanosuguru/go-table-reservation/internal/application"
)

// AdminHandler は運用向けの操作を提供する
type AdminHandler struct {
	reconciler ReconcilerInterface
}

func NewAdminHandler(reconciler ReconcilerInterface) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

type DriftResponse struct {
	EventID    string `json:"event_id"`
	TableID    string `json:"table_id"`
	Number     int    `json:"number"`
	SeatsTotal int    `json:"seats_total"`
	Held       int    `json:"held"`
	Before     int    `json:"before"`
	After      int    `json:"after"`
}

type ReconcileResponse struct {
	Drifts    []DriftResponse `json:"drifts"`
	Corrected int             `json:"corrected"`
}

func toReconcileResponse(drifts []application.TableDrift) ReconcileResponse {
	resp := ReconcileResponse{Drifts: make([]DriftResponse, len(drifts)), Corrected: len(drifts)}
	for i, d := range drifts {
		resp.Drifts[i] = DriftResponse(d)
	}
	return resp
}

// ReconcileEvent godoc
// @Summary イベントの空席数を再計算
// @Tags admin
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} ReconcileResponse
// @Router /admin/events/{id}/reconcile [post]
func (h *AdminHandler) ReconcileEvent(c echo.Context) error {
	drifts, err := h.reconciler.Reconcile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReconcileResponse(drifts))
}

// ReconcileAll godoc
// @Summary 全イベントの空席数を再計算
// @Tags admin
// @Produce json
// @Success 200 {object} ReconcileResponse
// @Router /admin/reconcile [post]
func (h *AdminHandler) ReconcileAll(c echo.Context) error {
	drifts, err := h.reconciler.ReconcileAll(c.Request().Context())
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReconcileResponse(drifts))
}
