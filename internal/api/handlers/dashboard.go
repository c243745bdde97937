package handlers

import (
	"context"
	"net/http"

	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/logging"
)

// ScanTrigger is the part of the controller the dashboard drives.
type ScanTrigger interface {
	TriggerAsync(ctx context.Context) bool
	Snapshot() controller.Update
}

// DashboardHandler lets a browser start scans and read the latest outcome.
type DashboardHandler struct {
	ctrl    ScanTrigger
	baseCtx context.Context
	logger  *logging.Logger
}

// NewDashboardHandler creates a dashboard handler. Cycles it starts run
// under baseCtx rather than the triggering request.
func NewDashboardHandler(baseCtx context.Context, ctrl ScanTrigger, logger *logging.Logger) *DashboardHandler {
	return &DashboardHandler{
		ctrl:    ctrl,
		baseCtx: baseCtx,
		logger:  logger.WithComponent("dashboard"),
	}
}

// TriggerResponse answers a scan trigger.
type TriggerResponse struct {
	Accepted bool              `json:"accepted"`
	Message  string            `json:"message"`
	State    controller.Update `json:"state"`
}

// TriggerScan starts a scan cycle. It answers 202 when the cycle started
// and 409 when one is already running.
func (h *DashboardHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if !h.ctrl.TriggerAsync(h.baseCtx) {
		h.logger.Info("Scan trigger ignored, scan already in progress", "request_id", middleware.GetRequestID(r))
		writeJSON(w, r, http.StatusConflict, TriggerResponse{
			Accepted: false,
			Message:  "scan already in progress",
			State:    h.ctrl.Snapshot(),
		})
		return
	}

	writeJSON(w, r, http.StatusAccepted, TriggerResponse{
		Accepted: true,
		Message:  "scan started",
		State:    h.ctrl.Snapshot(),
	})
}

// State returns the latest controller update.
func (h *DashboardHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.ctrl.Snapshot())
}
