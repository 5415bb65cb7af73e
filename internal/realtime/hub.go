// Package realtime pushes transcription status changes to connected clients
// over WebSocket, with Redis pub/sub bridging server and worker processes.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains user_id -> set of connections and fans out events.
// The worker publishes through Redis; the hub subscribes per user while that
// user has at least one open connection.
type Hub struct {
	// userID -> map[clientID]*Client
	users    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per user
	mu       sync.RWMutex
	logger   *zap.Logger
	redisSub RedisSubscriber
}

// RedisSubscriber subscribes to a user's event channel and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeUser(userID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisSub RedisSubscriber) *Hub {
	return &Hub{
		users:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redisSub: redisSub,
	}
}

// Register adds a client. Starts the Redis subscription for this user when the
// first connection arrives.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeUser(c.UserID, func(event string, payload []byte) {
				h.BroadcastToUser(c.UserID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.UserID] = cancel
			}
		}
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the user's
// last connection closes.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.users[c.UserID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.users, c.UserID)
			if cancel, ok := h.subs[c.UserID]; ok {
				cancel()
				delete(h.subs, c.UserID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// BroadcastToUser sends a message to all of a user's connections (local only).
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.users[userID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ConnectionCount returns the number of open connections for a user.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
