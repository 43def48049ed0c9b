package session

import (
	"sync"

	"github.com/google/uuid"
)

// Hub manages all live clients. Membership changes and broadcasts are
// serialized, so a broadcast never sees a half-updated set and never reaches a
// client after its removal.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
	}
}

// Add registers a client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Remove unregisters and closes the client with id. It reports whether the
// client was registered; repeated calls are no-ops.
func (h *Hub) Remove(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(id)
}

// RemoveFunc unregisters and closes every client matching pred.
func (h *Hub) RemoveFunc(pred func(*Client) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for id, c := range h.clients {
		if pred(c) && h.removeLocked(id) {
			n++
		}
	}
	return n
}

func (h *Hub) removeLocked(id uuid.UUID) bool {
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	delete(h.clients, id)
	c.Close()
	return true
}

// Broadcast queues msg for every client. A client whose queue rejects the
// message is removed; delivery to the others continues. It returns the number
// of evicted clients.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for id, c := range h.clients {
		if !c.Enqueue(msg) {
			h.removeLocked(id)
			evicted++
		}
	}
	return evicted
}

// SendTo queues msg for c only. A failed send removes c.
func (h *Hub) SendTo(c *Client, msg []byte) bool {
	if c.Enqueue(msg) {
		return true
	}
	h.Remove(c.ID)
	c.Close()
	return false
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of the registered clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// CloseAll removes every client. Used on shutdown.
func (h *Hub) CloseAll() int {
	return h.RemoveFunc(func(*Client) bool { return true })
}
