// Package handlers provides HTTP request handlers for the labscan API: the
// scan backend endpoint, health checks and the live dashboard.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/logging"
)

// ErrorResponse represents a standard API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent
		logging.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	writeJSON(w, r, statusCode, ErrorResponse{
		Error:     message,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}
