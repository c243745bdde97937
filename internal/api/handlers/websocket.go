package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/logging"
)

const (
	// WebSocket configuration constants.
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	bufferSize      = 256                                                // Size of the broadcast channel buffer
	clientBuffer    = 16                                                 // Queued messages per client
)

// Message types sent to dashboard clients.
const (
	MessageScanState  = "scan_state"
	MessageScanUpdate = "scan_update"
)

// WebSocketMessage represents a WebSocket message structure.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// wsClient is one connected dashboard.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	requestID string
}

// DashboardHub streams controller updates to websocket clients. It
// implements controller.Presenter.
type DashboardHub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader
	snapshot func() controller.Update

	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	count      atomic.Int64
}

// NewDashboardHub creates a hub and starts its run loop. snapshot, when set,
// supplies the state sent to each new client.
func NewDashboardHub(logger *logging.Logger, snapshot func() controller.Update) *DashboardHub {
	h := &DashboardHub{
		logger: logger.WithComponent("dashboard_ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		snapshot:   snapshot,
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	go h.run()

	return h
}

// Present queues update for every connected client without blocking.
func (h *DashboardHub) Present(_ context.Context, update controller.Update) {
	data, err := encodeMessage(MessageScanUpdate, update)
	if err != nil {
		h.logger.Error("Failed to marshal scan update", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Warn("Dashboard broadcast channel full, dropping update", "cycle", update.Cycle)
	}
}

// ServeWS upgrades the request and streams updates until the client leaves.
func (h *DashboardHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer), requestID: requestID}
	if h.snapshot != nil {
		if data, err := encodeMessage(MessageScanState, h.snapshot()); err == nil {
			c.send <- data
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	h.logger.Info("Dashboard client connected", "request_id", requestID, "remote_addr", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount returns the number of connected clients.
func (h *DashboardHub) ClientCount() int {
	return int(h.count.Load())
}

// Close disconnects all clients and stops the hub.
func (h *DashboardHub) Close() error {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})
	<-h.done
	return nil
}

// run owns the client set; all membership changes happen here.
func (h *DashboardHub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.shutdown:
			for c := range h.clients {
				h.drop(c)
			}
			h.logger.Debug("Dashboard hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.logger.Warn("Dashboard client too slow, disconnecting", "request_id", c.requestID)
					h.drop(c)
				}
			}
		}
	}
}

func (h *DashboardHub) drop(c *wsClient) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// readPump discards client messages and detects disconnects.
func (h *DashboardHub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket unexpected close", "request_id", c.requestID, "error", err)
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (h *DashboardHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Write failed, closing connection", "request_id", c.requestID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("Ping failed, closing connection", "request_id", c.requestID, "error", err)
				return
			}
		}
	}
}

func encodeMessage(messageType string, update controller.Update) ([]byte, error) {
	data, err := json.Marshal(WebSocketMessage{
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      update,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", messageType, err)
	}
	return data, nil
}
