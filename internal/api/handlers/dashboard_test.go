package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/controller/mocks"
	"github.com/anstrom/labscan/internal/metrics"
	"github.com/anstrom/labscan/internal/scanning"
)

func newTestController(requester controller.ScanRequester) *controller.Controller {
	return controller.New(requester,
		controller.WithMetrics(metrics.NewPrometheusMetrics()),
		controller.WithLogger(testLogger()))
}

func TestDashboardHandler_State(t *testing.T) {
	mock := gomock.NewController(t)
	ctrl := newTestController(mocks.NewMockScanRequester(mock))
	h := NewDashboardHandler(context.Background(), ctrl, testLogger())

	rec := httptest.NewRecorder()
	withRequestID(h.State).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/state", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	decodeBody(t, rec, &got)
	assert.Equal(t, "idle", got["state"])
	assert.Equal(t, controller.StatusIdle, got["status"])
}

func TestDashboardHandler_TriggerScan(t *testing.T) {
	mock := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(mock)

	release := make(chan struct{})
	requester.EXPECT().RequestScan(gomock.Any()).DoAndReturn(func(context.Context) (*scanning.ScanResult, error) {
		<-release
		return &scanning.ScanResult{Target: "10.0.0.5", Ports: []scanning.PortFinding{}}, nil
	})

	ctrl := newTestController(requester)
	h := NewDashboardHandler(context.Background(), ctrl, testLogger())

	rec := httptest.NewRecorder()
	withRequestID(h.TriggerScan).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/scan", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted TriggerResponse
	decodeBody(t, rec, &accepted)
	assert.True(t, accepted.Accepted)

	require.Eventually(t, func() bool { return ctrl.State() == controller.StateScanning }, 2*time.Second, 10*time.Millisecond)

	// A second trigger while the first cycle is blocked is refused.
	rec = httptest.NewRecorder()
	withRequestID(h.TriggerScan).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/scan", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var refused TriggerResponse
	decodeBody(t, rec, &refused)
	assert.False(t, refused.Accepted)
	assert.Equal(t, "scan already in progress", refused.Message)
	assert.Equal(t, controller.StateScanning, refused.State.State)

	close(release)
	require.Eventually(t, func() bool { return !ctrl.Busy() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, controller.StateSucceeded, ctrl.State())
}

func TestDashboardHandler_CycleOutlivesRequest(t *testing.T) {
	mock := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(mock)

	requester.EXPECT().RequestScan(gomock.Any()).DoAndReturn(func(ctx context.Context) (*scanning.ScanResult, error) {
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &scanning.ScanResult{Target: "10.0.0.5", Ports: []scanning.PortFinding{}}, nil
	})

	ctrl := newTestController(requester)
	h := NewDashboardHandler(context.Background(), ctrl, testLogger())

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/scan", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	withRequestID(h.TriggerScan).ServeHTTP(rec, req)
	cancel()

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return !ctrl.Busy() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, controller.StateSucceeded, ctrl.State())
}
