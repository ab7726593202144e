package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"argus/core"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; subscribers never send data.
	maxMessageSize = 512

	sendChannelSize = 256
)

// alertMessage is the frame pushed to stream subscribers for each alert.
type alertMessage struct {
	Type      string              `json:"type"`
	Event     *core.SecurityEvent `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
}

// client is one connected stream subscriber.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans dispatched alerts out to connected WebSocket subscribers. A
// slow subscriber is disconnected rather than allowed to back up the
// broadcast path.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a hub. Run Start in a goroutine before serving subscribers.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start runs the hub's event loop until Stop is called.
func (h *Hub) Start() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				c.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			h.logger.Info("Alert stream hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("Alert stream subscriber connected", "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Full send buffer means a stalled subscriber.
					go func(stalled *client) {
						h.unregister <- stalled
						stalled.conn.Close()
					}(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastAlert pushes one dispatched alert to all subscribers. Safe to
// use as a pipeline alert hook.
func (h *Hub) BroadcastAlert(e *core.SecurityEvent) {
	msg := alertMessage{
		Type:      "security:alert",
		Event:     e,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("Failed to marshal alert message", "event_id", e.EventID, "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	case <-time.After(time.Second):
		h.logger.Warnw("Alert broadcast timeout", "event_id", e.EventID)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts the hub down and disconnects all subscribers.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// ServeWS upgrades the request and registers the connection as a stream
// subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendChannelSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump discards inbound frames and detects disconnection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket unexpected close", "error", err)
			}
			break
		}
	}
}

// writePump writes queued messages and heartbeats to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
