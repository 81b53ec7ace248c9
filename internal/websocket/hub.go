package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/larder/internal/metrics"
)

// Message is a change notification pushed to the users a change affects.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients per user. A user may hold several
// connections (phone and laptop).
type Hub struct {
	mu     sync.RWMutex
	byUser map[int64]map[*Client]struct{}
	count  int
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		byUser: make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.byUser[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[c.userID] = set
	}
	set[c] = struct{}{}
	h.count++
	n := h.count
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set := h.byUser[c.userID]
	if _, ok := set[c]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
		close(c.send)
		h.count--
	}
	n := h.count
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// SendToUsers delivers msg to every connection of the given users. Ids may
// repeat; each connection gets the message once.
func (h *Hub) SendToUsers(userIDs []int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		for c := range h.byUser[id] {
			h.deliver(c, data)
		}
	}
}

// BroadcastAdmins delivers msg to every connection opened by an admin.
func (h *Hub) BroadcastAdmins(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.byUser {
		for c := range set {
			if c.admin {
				h.deliver(c, data)
			}
		}
	}
}

func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Debug("client buffer full, dropping message", "user_id", c.userID)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
