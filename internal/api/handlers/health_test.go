package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/labscan/internal/scanning"
)

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		lookPath   func(string) (string, error)
		wantStatus int
		wantHealth string
		wantCheck  string
	}{
		{
			name:       "nmap available",
			lookPath:   func(string) (string, error) { return "/usr/bin/nmap", nil },
			wantStatus: http.StatusOK,
			wantHealth: StatusHealthy,
			wantCheck:  "/usr/bin/nmap",
		},
		{
			name:       "nmap missing",
			lookPath:   func(string) (string, error) { return "", fmt.Errorf("not found") },
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: StatusUnhealthy,
			wantCheck:  "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := scanning.NewSlotPool(2)
			h := NewHealthHandler("", slots)
			h.lookPath = tt.lookPath

			rec := httptest.NewRecorder()
			withRequestID(h.Health).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.wantHealth, resp.Status)
			assert.Equal(t, tt.wantCheck, resp.Checks["nmap"])
			if assert.NotNil(t, resp.Scans) {
				assert.Equal(t, 0, resp.Scans.Active)
				assert.Equal(t, 2, resp.Scans.Available)
				assert.Empty(t, resp.Scans.OldestScan)
			}
		})
	}
}

func TestHealthHandler_ReportsRunningScan(t *testing.T) {
	slots := scanning.NewSlotPool(2)
	require.NoError(t, slots.Acquire(context.Background(), "running"))
	t.Cleanup(func() { slots.Release("running") })
	time.Sleep(5 * time.Millisecond)

	h := NewHealthHandler("", slots)
	h.lookPath = func(string) (string, error) { return "/usr/bin/nmap", nil }

	rec := httptest.NewRecorder()
	withRequestID(h.Health).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Scans)
	assert.Equal(t, 1, resp.Scans.Active)
	assert.Equal(t, 1, resp.Scans.Available)
	oldest, err := time.ParseDuration(resp.Scans.OldestScan)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, oldest, 5*time.Millisecond)
}

func TestHealthHandler_DefaultBinary(t *testing.T) {
	h := NewHealthHandler("", nil)
	var looked string
	h.lookPath = func(name string) (string, error) {
		looked = name
		return "/usr/bin/" + name, nil
	}

	rec := httptest.NewRecorder()
	withRequestID(h.Health).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, "nmap", looked)
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	assert.Nil(t, resp.Scans)
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("nmap", nil)

	rec := httptest.NewRecorder()
	withRequestID(h.Liveness).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/liveness", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp LivenessResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "alive", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestHealthHandler_Version(t *testing.T) {
	SetBuildInfo("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetBuildInfo("dev", "none", "unknown") })

	h := NewHealthHandler("nmap", nil)
	rec := httptest.NewRecorder()
	withRequestID(h.Version).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp VersionResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "abc123", resp.Commit)
	assert.Equal(t, "2026-01-01", resp.BuildTime)
	assert.NotEmpty(t, resp.GoVersion)
}
