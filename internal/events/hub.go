package events

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub broadcasts bus events to connected WebSocket clients. It is the
// transport behind the watch daemon's /events endpoint.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewHub returns a Hub with no connections.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local tool; the daemon binds to loopback.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]bool{},
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Drain client frames; the first read error means disconnect.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast writes e to every connected client, dropping clients whose
// writes fail.
func (h *Hub) Broadcast(e Event) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(e); err != nil {
			h.drop(c)
		}
	}
}

// Attach subscribes the hub to bus and returns the unsubscribe function.
func (h *Hub) Attach(bus *Bus) func() {
	return bus.Subscribe(h.Broadcast)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = map[*websocket.Conn]bool{}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
