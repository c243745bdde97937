package handlers

import (
	"net/http"
	"os/exec"
	"runtime"
	"time"
)

// Status constants.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// SlotReporter exposes the scan engine's concurrency state.
type SlotReporter interface {
	GetActiveScans() int
	GetAvailableSlots() int
	OldestScan() time.Duration
}

// HealthHandler handles health check and version endpoints.
type HealthHandler struct {
	nmapBinary string
	slots      SlotReporter
	lookPath   func(string) (string, error)
	startTime  time.Time
}

// NewHealthHandler creates a health handler. An empty nmapBinary means the
// nmap found on PATH.
func NewHealthHandler(nmapBinary string, slots SlotReporter) *HealthHandler {
	if nmapBinary == "" {
		nmapBinary = "nmap"
	}
	return &HealthHandler{
		nmapBinary: nmapBinary,
		slots:      slots,
		lookPath:   exec.LookPath,
		startTime:  time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
	Scans     *ScanSlots        `json:"scans,omitempty"`
}

// ScanSlots reports engine capacity.
type ScanSlots struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	// OldestScan is the age of the longest running scan, empty when idle.
	OldestScan string `json:"oldest_scan,omitempty"`
}

// LivenessResponse represents a simple liveness check response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports whether the scan engine can run. A missing nmap binary
// makes the service unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
		Checks:    make(map[string]string),
	}

	if path, err := h.lookPath(h.nmapBinary); err != nil {
		response.Status = StatusUnhealthy
		response.Checks["nmap"] = "not found"
	} else {
		response.Checks["nmap"] = path
	}

	if h.slots != nil {
		response.Scans = &ScanSlots{
			Active:    h.slots.GetActiveScans(),
			Available: h.slots.GetAvailableSlots(),
		}
		if oldest := h.slots.OldestScan(); oldest > 0 {
			response.Scans.OldestScan = oldest.Round(time.Millisecond).String()
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, r, statusCode, response)
}

// Liveness reports that the process is serving requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
	})
}

// Version reports build information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, VersionResponse{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Timestamp: time.Now().UTC(),
	})
}

// Build information, set via SetBuildInfo from ldflags values.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// SetBuildInfo sets build information (called by main package).
func SetBuildInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
