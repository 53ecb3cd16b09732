package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventVideoCreated and EventVideoDeleted are the library feed events.
	EventVideoCreated = "video_created"
	EventVideoDeleted = "video_deleted"
)

// Hub maintains the set of connected library feed clients and broadcasts to them.
// With Redis configured, events go through the library channel so every instance
// delivers them exactly once.
type Hub struct {
	clients  map[string]*Client
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishLibraryEvent(ctx context.Context, event string, payload []byte) error
}

// RedisSubscriber subscribes to the library channel and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeLibrary(ctx context.Context, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Start subscribes to the Redis library channel until ctx is done. Without a subscriber
// it is a no-op.
func (h *Hub) Start(ctx context.Context) error {
	if h.redisSub == nil {
		return nil
	}
	cancel, err := h.redisSub.SubscribeLibrary(ctx, func(event string, payload []byte) {
		h.Broadcast(event, json.RawMessage(payload))
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return nil
}

// Register adds a client to the feed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("feed client joined", zap.String("client_id", c.ID))
}

// Unregister removes a client from the feed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	h.logger.Debug("feed client left", zap.String("client_id", c.ID))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to all local clients. Slow clients whose buffer is full miss it.
// Sends happen under the read lock so an unregistered client's channel is never written.
func (h *Hub) Broadcast(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal feed event", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Notify publishes an event to the library channel, whose subscription performs the
// broadcast on every instance including this one. Without Redis it broadcasts locally.
func (h *Hub) Notify(ctx context.Context, event string, payload interface{}) error {
	if h.redis == nil {
		h.Broadcast(event, payload)
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.redis.PublishLibraryEvent(ctx, event, data)
}

// sendTo delivers a message to a single client.
func (h *Hub) sendTo(clientID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}
