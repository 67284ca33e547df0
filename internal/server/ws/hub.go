// Package ws contains the WebSocket hub that streams each scan cycle's
// ranked results to connected clients.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coinpulse/arbscan/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced by the HTTP middleware in front of us.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Envelope is the wire frame pushed to clients.
type Envelope struct {
	Type      string    `json:"type"` // "scan_results" or "opportunity"
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Hub manages connected WebSocket clients. The scan loop pushes each cycle's
// ranked results through BroadcastResults; slow clients are dropped rather
// than allowed to stall the broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		logger:  logger.With(slog.String("component", "ws-hub")),
	}
}

// HandleWS upgrades the connection and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client connected", slog.Int("clients", count))

	go h.writePump(c)
	go h.readPump(c)
}

// BroadcastResults pushes a full cycle's ranked results to every client.
func (h *Hub) BroadcastResults(results []domain.ScanResult) {
	h.broadcast(Envelope{Type: "scan_results", Timestamp: time.Now().UTC(), Payload: results})
}

// BroadcastOpportunity pushes a single above-threshold result.
func (h *Hub) BroadcastOpportunity(r domain.ScanResult) {
	h.broadcast(Envelope{Type: "opportunity", Timestamp: time.Now().UTC(), Payload: r})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("marshal broadcast frame", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Send buffer full: the client is too slow, cut it loose.
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump discards inbound frames (the stream is one-way) and keeps the
// pong deadline fresh.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

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
		}
	}
}
