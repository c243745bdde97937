package controller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/labscan/internal/client"
	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/controller/mocks"
	"github.com/anstrom/labscan/internal/interpret"
	"github.com/anstrom/labscan/internal/metrics"
	"github.com/anstrom/labscan/internal/scanning"
)

func sshResult() *scanning.ScanResult {
	return &scanning.ScanResult{
		Target: "10.0.0.5",
		Ports:  []scanning.PortFinding{{Port: 22, Protocol: "tcp", Service: "ssh"}},
	}
}

// recorder collects presented updates.
type recorder struct {
	mu      sync.Mutex
	updates []controller.Update
}

func (r *recorder) expect(p *mocks.MockPresenter) *gomock.Call {
	return p.EXPECT().Present(gomock.Any(), gomock.Any()).Do(func(_ context.Context, u controller.Update) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updates = append(r.updates, u)
	})
}

func (r *recorder) all() []controller.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]controller.Update(nil), r.updates...)
}

func newController(requester controller.ScanRequester, opts ...controller.Option) *controller.Controller {
	opts = append([]controller.Option{controller.WithMetrics(metrics.NewPrometheusMetrics())}, opts...)
	return controller.New(requester, opts...)
}

func TestController_InitialState(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := newController(mocks.NewMockScanRequester(ctrl))

	snap := c.Snapshot()
	assert.Equal(t, controller.StateIdle, snap.State)
	assert.Equal(t, controller.StatusIdle, snap.Status)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.Summary)
	assert.False(t, c.Busy())
}

func TestController_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	presenter := mocks.NewMockPresenter(ctrl)
	rec := &recorder{}

	requester.EXPECT().RequestScan(gomock.Any()).Return(sshResult(), nil).Times(1)
	rec.expect(presenter).Times(2)

	c := newController(requester, controller.WithPresenter(presenter))
	require.True(t, c.Trigger(context.Background()))

	updates := rec.all()
	require.Len(t, updates, 2)
	assert.Equal(t, controller.StateScanning, updates[0].State)
	assert.Equal(t, "Scan in progress…", updates[0].Status)
	assert.Equal(t, uint64(1), updates[0].Cycle)

	final := updates[1]
	assert.Equal(t, controller.StateSucceeded, final.State)
	assert.Equal(t, "Scan complete • 1 open port(s) detected", final.Status)
	assert.Empty(t, final.Notice)
	assert.Nil(t, final.Failure)
	require.NotNil(t, final.Summary)
	assert.Equal(t, interpret.RoleSSHHost, final.Summary.Role)
	assert.Equal(t, []string{"Port 22/tcp – SSH (secure remote shell, often admin access)."}, final.Summary.NotableFindings)
	assert.False(t, final.FinishedAt.Before(final.StartedAt))

	assert.Equal(t, final, c.Snapshot())
	assert.False(t, c.Busy())
}

func TestController_EmptyResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	requester.EXPECT().RequestScan(gomock.Any()).
		Return(&scanning.ScanResult{Target: "10.0.0.5", Ports: []scanning.PortFinding{}}, nil)

	c := newController(requester)
	require.True(t, c.Trigger(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, controller.StateSucceeded, snap.State)
	assert.Equal(t, "Scan complete • no open ports detected", snap.Status)
	assert.Equal(t, interpret.NoResultsLine, snap.Notice)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, interpret.RoleNone, snap.Summary.Role)
	assert.Len(t, snap.Summary.EmptyExplanation, 3)
}

func TestController_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    string
		message string
		hint    string
	}{
		{
			name:    "error field on success response",
			err:     &client.Failure{Kind: client.ApplicationError, Message: "nmap not found", StatusCode: 200},
			kind:    "application_error",
			message: "nmap not found",
			hint:    client.ApplicationHint,
		},
		{
			name:    "non-success response without message",
			err:     &client.Failure{Kind: client.ApplicationError, StatusCode: 500},
			kind:    "application_error",
			message: "Unknown error during scan.",
			hint:    client.ApplicationHint,
		},
		{
			name:    "transport failure",
			err:     &client.Failure{Kind: client.NetworkError, Cause: errors.New("connection refused")},
			kind:    "network_error",
			message: "Unexpected error during scan.",
			hint:    client.NetworkHint,
		},
		{
			name:    "untyped error",
			err:     errors.New("boom"),
			kind:    "network_error",
			message: "Unexpected error during scan.",
			hint:    client.NetworkHint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			requester := mocks.NewMockScanRequester(ctrl)
			requester.EXPECT().RequestScan(gomock.Any()).Return(nil, tt.err)

			c := newController(requester)
			require.True(t, c.Trigger(context.Background()))

			snap := c.Snapshot()
			assert.Equal(t, controller.StateFailed, snap.State)
			assert.Equal(t, "Scan failed", snap.Status)
			assert.Equal(t, tt.message, snap.Notice)
			assert.Nil(t, snap.Summary)
			require.NotNil(t, snap.Failure)
			assert.Equal(t, tt.kind, snap.Failure.Kind)
			assert.Equal(t, tt.message, snap.Failure.Message)
			assert.Equal(t, tt.hint, snap.Failure.Hint)
			assert.False(t, c.Busy())
		})
	}
}

func TestController_NmapMissingHint(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	requester.EXPECT().RequestScan(gomock.Any()).
		Return(nil, &client.Failure{Kind: client.ApplicationError, Message: "nmap not found", StatusCode: 200})

	c := newController(requester)
	c.Trigger(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, controller.StateFailed, snap.State)
	assert.Contains(t, snap.Failure.Message, "nmap not found")
	assert.Contains(t, snap.Failure.Hint, "nmap is installed")
}

func TestController_IgnoresTriggersWhileScanning(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	requester.EXPECT().RequestScan(gomock.Any()).DoAndReturn(func(context.Context) (*scanning.ScanResult, error) {
		close(entered)
		<-release
		return sshResult(), nil
	}).Times(1)

	c := newController(requester)
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() { done <- c.Trigger(ctx) }()
	<-entered

	assert.Equal(t, controller.StateScanning, c.State())
	assert.True(t, c.Busy())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.False(t, c.Trigger(ctx))
			assert.False(t, c.TriggerAsync(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, controller.StateScanning, c.State())

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, controller.StateSucceeded, c.State())
	assert.Equal(t, uint64(1), c.Snapshot().Cycle)
}

func TestController_AcceptsTriggerAfterEachOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	gomock.InOrder(
		requester.EXPECT().RequestScan(gomock.Any()).Return(nil, &client.Failure{Kind: client.NetworkError}),
		requester.EXPECT().RequestScan(gomock.Any()).Return(sshResult(), nil),
		requester.EXPECT().RequestScan(gomock.Any()).Return(nil, &client.Failure{Kind: client.ApplicationError}),
	)

	c := newController(requester)
	ctx := context.Background()

	require.True(t, c.Trigger(ctx))
	assert.Equal(t, controller.StateFailed, c.State())
	require.True(t, c.Trigger(ctx))
	assert.Equal(t, controller.StateSucceeded, c.State())
	require.True(t, c.Trigger(ctx))
	assert.Equal(t, controller.StateFailed, c.State())
	assert.Equal(t, uint64(3), c.Snapshot().Cycle)
}

func TestController_InterpreterPanicReleasesGuard(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	requester.EXPECT().RequestScan(gomock.Any()).Return(sshResult(), nil).Times(2)

	calls := 0
	c := newController(requester, controller.WithInterpreter(
		func(target string, findings []scanning.PortFinding) interpret.Summary {
			calls++
			if calls == 1 {
				panic("bad rule table")
			}
			return interpret.Interpret(target, findings)
		}))

	require.True(t, c.Trigger(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, controller.StateFailed, snap.State)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, client.NetworkMessage, snap.Failure.Message)
	assert.False(t, c.Busy())

	require.True(t, c.Trigger(context.Background()))
	assert.Equal(t, controller.StateSucceeded, c.State())
}

func TestController_PresenterPanicReleasesGuard(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	presenter := mocks.NewMockPresenter(ctrl)
	requester.EXPECT().RequestScan(gomock.Any()).Return(sshResult(), nil)
	presenter.EXPECT().Present(gomock.Any(), gomock.Any()).Do(func(context.Context, controller.Update) {
		panic("render failed")
	}).Times(2)

	c := newController(requester, controller.WithPresenter(presenter))

	require.True(t, c.Trigger(context.Background()))
	assert.Equal(t, controller.StateSucceeded, c.State())
	assert.False(t, c.Busy())
}

func TestController_TriggerAsync(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	release := make(chan struct{})
	requester.EXPECT().RequestScan(gomock.Any()).DoAndReturn(func(context.Context) (*scanning.ScanResult, error) {
		<-release
		return sshResult(), nil
	})

	c := newController(requester)
	ctx := context.Background()

	require.True(t, c.TriggerAsync(ctx))
	assert.True(t, c.Busy())
	assert.False(t, c.TriggerAsync(ctx))

	close(release)
	require.Eventually(t, func() bool {
		return !c.Busy() && c.State() == controller.StateSucceeded
	}, time.Second, 5*time.Millisecond)
}

func TestController_PresentersInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	requester := mocks.NewMockScanRequester(ctrl)
	first := mocks.NewMockPresenter(ctrl)
	second := mocks.NewMockPresenter(ctrl)
	requester.EXPECT().RequestScan(gomock.Any()).Return(sshResult(), nil)

	var order []string
	first.EXPECT().Present(gomock.Any(), gomock.Any()).Do(func(context.Context, controller.Update) {
		order = append(order, "first")
	}).Times(2)
	second.EXPECT().Present(gomock.Any(), gomock.Any()).Do(func(context.Context, controller.Update) {
		order = append(order, "second")
	}).Times(2)

	c := newController(requester, controller.WithPresenter(first))
	c.AddPresenter(second)
	c.Trigger(context.Background())

	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", controller.StateIdle.String())
	assert.Equal(t, "scanning", controller.StateScanning.String())
	assert.Equal(t, "succeeded", controller.StateSucceeded.String())
	assert.Equal(t, "failed", controller.StateFailed.String())
	assert.Equal(t, "State(9)", controller.State(9).String())
}

func TestCompleteStatus(t *testing.T) {
	assert.Equal(t, "Scan complete • no open ports detected", controller.CompleteStatus(0))
	assert.Equal(t, "Scan complete • 3 open port(s) detected", controller.CompleteStatus(3))
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []controller.State{
		controller.StateIdle, controller.StateScanning, controller.StateSucceeded, controller.StateFailed,
	} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var got controller.State
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}

	var bad controller.State
	assert.Error(t, bad.UnmarshalText([]byte("paused")))
}
