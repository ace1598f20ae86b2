// Package live streams ingestion events to WebSocket observers. Delivery is
// fire and forget: slow or dead clients are dropped rather than allowed to
// back-pressure the ingestion path.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kurnia-dev/smartenergy/core/events"
	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/internal/eventbus"
)

const (
	// sendBufferSize is the per-client outbound buffer.
	sendBufferSize = 64

	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Message is the envelope pushed to every connected client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Hub fans bus events out to WebSocket clients.
type Hub struct {
	bus *eventbus.Bus
	log logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub reading from the given bus.
func NewHub(bus *eventbus.Bus, log logger.Logger) *Hub {
	return &Hub{bus: bus, log: log, clients: make(map[*client]struct{})}
}

// Run consumes the event bus and broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-sub:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev eventbus.Event) {
	var msg Message
	switch v := ev.(type) {
	case events.Reading:
		msg = Message{Type: "reading", Payload: v}
	case events.DailyTotal:
		msg = Message{Type: "daily_total", Payload: v}
	default:
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("encode live event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client cannot keep up, cut it loose.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the request and attaches the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debugf("live client connected (%d total)", n)

	go h.writePump(c)
	go h.readPump(c)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice closed connections and process control frames.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if existed {
		close(c.send)
	}
	_ = c.conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
		_ = c.conn.Close()
	}
}
