// Package ws maintains one live websocket per authenticated user and pushes
// real-time events (new messages) to them.
package ws

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// conn is the slice of *websocket.Conn the hub needs. Tests substitute
// in-memory fakes.
type conn interface {
	WriteJSON(v any) error
	Close() error
}

// Hub tracks at most one connection per user id. A new connection for a
// user replaces (and closes) the previous one.
type Hub struct {
	mu      sync.Mutex
	clients map[string]conn
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]conn)}
}

// Register associates c with userID, closing any connection it replaces.
func (h *Hub) Register(userID string, c conn) {
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = c
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// Unregister drops the mapping only if c is still the current connection,
// so a replaced connection's deferred cleanup cannot evict its successor.
func (h *Hub) Unregister(userID string, c conn) {
	h.mu.Lock()
	if h.clients[userID] == c {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
}

// Push sends payload to userID's connection if one is live. A write error
// evicts the connection. Returns whether a delivery was attempted.
func (h *Hub) Push(userID string, payload any) bool {
	h.mu.Lock()
	c := h.clients[userID]
	h.mu.Unlock()
	if c == nil {
		return false
	}
	if err := c.WriteJSON(payload); err != nil {
		log.Printf("ws: write to %s failed, dropping connection: %v", userID, err)
		h.Unregister(userID, c)
		_ = c.Close()
		return false
	}
	return true
}

var upgrader = websocket.Upgrader{
	// Browser clients connect from the app origin; cross-origin reads are
	// not a concern for a push-only channel.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Serve upgrades the request and parks the connection in the hub under the
// userId query parameter until the peer goes away.
func (h *Hub) Serve(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	wc, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	h.Register(userID, wc)
	defer func() {
		h.Unregister(userID, wc)
		_ = wc.Close()
	}()

	// Drain control frames and detect disconnect. Inbound data frames are
	// ignored; this channel is push only.
	for {
		if _, _, err := wc.ReadMessage(); err != nil {
			return nil
		}
	}
}
