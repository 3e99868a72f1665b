package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Entities and actions published by the service.
const (
	EntityOccurrence = "occurrence"
	EntityPoints     = "points"
	EntityRoutine    = "routine"
	EntityReward     = "reward"

	ActionCompleted = "completed"
	ActionPending   = "pending"
	ActionApproved  = "approved"
	ActionRedeemed  = "redeemed"
	ActionAdjusted  = "adjusted"
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
)

// Message is a change notification pushed to every client of one family.
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

// Hub tracks connected clients by family and fans messages out to them.
type Hub struct {
	mu       sync.RWMutex
	families map[int64]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		families: make(map[int64]map[*Client]struct{}),
		logger:   logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.families[c.familyID]
	if !ok {
		set = make(map[*Client]struct{})
		h.families[c.familyID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.families[c.familyID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.families, c.familyID)
	}
}

// Broadcast sends msg to every client of familyID. Clients whose buffer is
// full miss the message.
func (h *Hub) Broadcast(familyID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.families[familyID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropped message for slow client", "family_id", familyID, "type", msg.Type)
		}
	}
}

// ClientCount returns the number of connected clients across all families.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.families {
		n += len(set)
	}
	return n
}
