// Package httpapi implements the core's four HTTP endpoints (spec.md §6):
// webhook intake, health, sync, and a live WebSocket feed, chi-routed.
// Grounded on interfaces/http/rest/router.go for middleware
// wiring and interfaces/websocket/hub.go for the broadcast-to-all-clients
// shape, generalized from per-user connection groups (this layer has no
// user concept) to a single broadcast set.
package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"udl-core/domain/events"
	"udl-core/domain/graph"
	"udl-core/webhooks"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Frame is the JSON envelope GET /ws emits (spec.md §6 "{ type, payload,
// timestamp }").
type Frame struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// Hub fans node and webhook events out to every connected WebSocket
// client. Grounded on interfaces/websocket/hub.go's Hub, narrowed from
// per-user connection maps to one broadcast set since this layer's clients
// are undifferentiated subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub and subscribes it to bus for every frame type GET
// /ws is documented to emit.
func NewHub(bus *events.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{clients: make(map[*client]bool), logger: logger}

	bus.Subscribe(events.NodeUpdated, func(e events.Event) { h.broadcastTyped("node:updated", e.Payload) })
	bus.Subscribe(events.NodeCreated, func(e events.Event) { h.broadcastTyped("node:updated", e.Payload) })
	bus.Subscribe(events.NodeDeleted, func(e events.Event) {
		if n, ok := e.Payload.(graph.Node); ok {
			h.broadcastTyped("node:deleted", n.Internal.ID)
			return
		}
		h.broadcastTyped("node:deleted", e.Payload)
	})
	bus.Subscribe(events.WebhookQueued, func(e events.Event) {
		if w, ok := e.Payload.(webhooks.QueuedWebhook); ok {
			h.broadcastTyped("webhook:queued", map[string]interface{}{
				"pluginName": w.PluginName,
				"parsedBody": w.ParsedBody,
			})
			return
		}
		h.broadcastTyped("webhook:queued", e.Payload)
	})

	return h
}

func (h *Hub) broadcastTyped(frameType string, payload interface{}) {
	raw, err := json.Marshal(Frame{Type: frameType, Payload: payload, Timestamp: graph.Now()})
	if err != nil {
		h.logger.Warn("failed to marshal outbound frame", zap.Error(err))
		return
	}
	h.broadcast(raw)
}

func (h *Hub) broadcast(raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			h.logger.Warn("dropping frame for slow client")
		}
	}
}

// Register upgrades conn into a managed client and starts its pumps. It
// blocks until the connection closes.
func (h *Hub) Register(ctx context.Context, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
	}()

	done := make(chan struct{})
	go c.writePump(done)
	c.readPump(ctx)
	close(done)
}

func (c *client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
