// Package tap streams relay events to WebSocket clients as JSON, one message
// per event. It is a diagnostic side channel: nothing in the relay waits for
// it and slow clients lose events instead of slowing the relay down.
package tap

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/tftprelay/internal/relay"
	"github.com/1ureka/tftprelay/internal/util"
)

// Path is where the event stream is served.
const Path = "/events"

const (
	clientBuffer = 64
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub accepts WebSocket clients and fans relay events out to them.
// It implements relay.Observer.
type Hub struct {
	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Uint64
}

type client struct {
	conn      *websocket.Conn
	send      chan relay.Event
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// NewHub creates a hub with no listener.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Start listens on addr ("host:port", port 0 for any) and serves the event
// stream at Path. It returns the bound address.
func (h *Hub) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start tap server: %w", err)
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(Path, h.handleWS)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogWarning("tap server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan relay.Event, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	util.LogDebug("tap client connected: %s", conn.RemoteAddr())

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop delivers queued events to one client until its channel closes or
// a write fails.
func (h *Hub) writeLoop(c *client) {
	defer h.remove(c)
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// readLoop only exists to notice the client going away.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
	if ok {
		util.LogDebug("tap client disconnected: %s", c.conn.RemoteAddr())
	}
}

// Observe queues ev for every connected client without blocking. A client
// whose buffer is full misses the event.
func (h *Hub) Observe(ev relay.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many per-client deliveries were skipped.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close stops accepting clients and disconnects the current ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	if h.server == nil {
		return nil
	}
	return h.server.Close()
}
