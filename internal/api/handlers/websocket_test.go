package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/scanning"
)

type wsEnvelope struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      controller.Update `json:"data"`
}

func dialHub(t *testing.T, hub *DashboardHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(withRequestID(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env wsEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestDashboardHub_SendsSnapshotOnConnect(t *testing.T) {
	snapshot := controller.Update{State: controller.StateIdle, Status: controller.StatusIdle}
	hub := NewDashboardHub(testLogger(), func() controller.Update { return snapshot })
	t.Cleanup(func() { _ = hub.Close() })

	conn := dialHub(t, hub)

	env := readEnvelope(t, conn)
	assert.Equal(t, MessageScanState, env.Type)
	assert.Equal(t, controller.StatusIdle, env.Data.Status)
	assert.False(t, env.Timestamp.IsZero())
}

func TestDashboardHub_BroadcastsUpdates(t *testing.T) {
	hub := NewDashboardHub(testLogger(), nil)
	t.Cleanup(func() { _ = hub.Close() })

	first := dialHub(t, hub)
	second := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Present(context.Background(), controller.Update{
		Cycle:  1,
		State:  controller.StateSucceeded,
		Status: controller.CompleteStatus(1),
		Result: &scanning.ScanResult{
			Target: "10.0.0.5",
			Ports:  []scanning.PortFinding{{Port: 22, Protocol: "tcp", Service: "ssh"}},
		},
	})

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, MessageScanUpdate, env.Type)
		assert.Equal(t, uint64(1), env.Data.Cycle)
		assert.Equal(t, controller.StateSucceeded, env.Data.State)
		require.NotNil(t, env.Data.Result)
		assert.Equal(t, 22, env.Data.Result.Ports[0].Port)
	}
}

func TestDashboardHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewDashboardHub(testLogger(), nil)
	t.Cleanup(func() { _ = hub.Close() })

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDashboardHub_PresentWithoutClients(t *testing.T) {
	hub := NewDashboardHub(testLogger(), nil)
	t.Cleanup(func() { _ = hub.Close() })

	assert.NotPanics(t, func() {
		for i := 0; i < bufferSize*2; i++ {
			hub.Present(context.Background(), controller.Update{Cycle: uint64(i)})
		}
	})
}

func TestDashboardHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewDashboardHub(testLogger(), nil)

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.NotPanics(t, func() {
		hub.Present(context.Background(), controller.Update{Cycle: 1})
	})
}
