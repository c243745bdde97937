package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/errors"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/scanning"
)

// Scanner runs one scan of the fixed lab target.
type Scanner interface {
	Scan(ctx context.Context) (*scanning.ScanResult, error)
	Target() string
}

// ScanHandler serves the scan backend endpoint.
type ScanHandler struct {
	scanner Scanner
	logger  *logging.Logger
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(scanner Scanner, logger *logging.Logger) *ScanHandler {
	return &ScanHandler{
		scanner: scanner,
		logger:  logger.WithComponent("scan_handler"),
	}
}

// scanErrorBody is the failure payload of POST /scan.
type scanErrorBody struct {
	Error string `json:"error"`
}

// Scan runs a scan and answers with {target, ports} or a 500 {error}. The
// request body and query string are ignored; the target is never taken from
// the request.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)
	h.logger.Info("Scan requested", "request_id", requestID, "target", h.scanner.Target())

	result, err := h.scanner.Scan(r.Context())
	if err != nil {
		if errors.IsCode(err, errors.CodeCanceled) {
			// The caller went away; nobody reads this response.
			h.logger.Warn("Scan canceled", "request_id", requestID, "error", err)
		} else {
			h.logger.Error("Scan failed", "request_id", requestID, "error", err, "code", errors.GetCode(err))
		}
		writeJSON(w, r, http.StatusInternalServerError, scanErrorBody{Error: errorMessage(err)})
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// errorMessage returns the text reported to clients for a scan error.
func errorMessage(err error) string {
	var scanErr *errors.ScanError
	if stderrors.As(err, &scanErr) && scanErr.Message != "" {
		return scanErr.Message
	}
	return err.Error()
}
