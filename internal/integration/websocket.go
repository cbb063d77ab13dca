package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamwatch/streamwatch/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the connection
	// as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are not checked; put a reverse proxy in front for CORS.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to WebSocket clients.
type Message struct {
	Event string         `json:"event"`
	Data  *types.Payload `json:"data,omitempty"`
}

// WebSocket broadcasts notifications to every connected client. It is an
// http.Handler; the status server mounts it at /ws/{alias}.
type WebSocket struct {
	bufSize int

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocket returns a hub whose clients buffer up to bufSize messages.
func NewWebSocket(bufSize int) *WebSocket {
	if bufSize <= 0 {
		bufSize = defaultSendBuffer
	}
	return &WebSocket{bufSize: bufSize, clients: make(map[*wsClient]struct{})}
}

func newWebSocket(args map[string]any) (types.Integration, error) {
	if err := rejectUnknown(args, "buffer"); err != nil {
		return nil, err
	}
	n, err := intArg(args, "buffer", defaultSendBuffer)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(n), nil
}

func (h *WebSocket) OnNext(p types.Payload) { h.broadcast(Message{Event: "failure", Data: &p}) }

func (h *WebSocket) OnError(p types.Payload) { h.broadcast(Message{Event: "error", Data: &p}) }

// OnCompleted sends a final completed message and disconnects every client.
func (h *WebSocket) OnCompleted() {
	h.broadcast(Message{Event: "completed"})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the connection and streams notifications until the
// client disconnects.
func (h *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, h.bufSize)}
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
		conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *WebSocket) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocket) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *WebSocket) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *WebSocket) broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("websocket: encode message", "event", m.Event, "err", err)
		return
	}

	// Sends happen under the read lock so unregister cannot close a channel
	// mid-send.
	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("websocket: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects.
func (c *wsClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
