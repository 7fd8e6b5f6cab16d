// Package realtime fans domain events out to live websocket connections.
// The gateway holds no authoritative state: only the connection registry and
// each connection's declared interest set. A restart loses nothing but
// undelivered notifications, and reconnecting clients re-fetch from scratch.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"example.com/vidstream/services/engagement/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notification is the entire server-to-client message: event kind and target
// id, nothing else. State never rides on a notification; clients re-fetch.
type Notification struct {
	Event    string `json:"event"`
	TargetID string `json:"target_id,omitempty"`
}

// Hub owns the set of live connections and their interest sets.
// Constructed once at process start and passed by reference; register,
// unregister and notify are explicit operations, no ambient globals.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	interests map[uuid.UUID]map[*Client]struct{}

	queueDepth  int
	sendTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewHub creates a hub. queueDepth bounds each connection's outbound queue;
// sendTimeout bounds a single websocket write.
func NewHub(queueDepth int, sendTimeout time.Duration, m *metrics.Metrics) *Hub {
	if queueDepth <= 0 {
		queueDepth = 32
	}
	if sendTimeout <= 0 {
		sendTimeout = 250 * time.Millisecond
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		interests:   make(map[uuid.UUID]map[*Client]struct{}),
		queueDepth:  queueDepth,
		sendTimeout: sendTimeout,
		metrics:     m,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.SetGauge("realtime_connections", int64(len(h.clients)))
	}
	log.Debug().Int("total_connections", len(h.clients)).Msg("Realtime client connected")
}

// Unregister removes a connection, clears its interests and closes its send
// queue. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for targetID := range c.watched {
		h.dropInterest(c, targetID)
	}
	// The client serializes this against its own enqueue; readPump's
	// heartbeat ack may still be running without the hub lock.
	c.closeSend()

	if h.metrics != nil {
		h.metrics.SetGauge("realtime_connections", int64(len(h.clients)))
	}
	log.Debug().Int("total_connections", len(h.clients)).Msg("Realtime client disconnected")
}

// Watch declares the connection's interest in a target.
func (h *Hub) Watch(c *Client, targetID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	if _, ok := h.interests[targetID]; !ok {
		h.interests[targetID] = make(map[*Client]struct{})
	}
	h.interests[targetID][c] = struct{}{}
	c.watched[targetID] = struct{}{}
}

// Unwatch withdraws the connection's interest in a target.
func (h *Hub) Unwatch(c *Client, targetID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropInterest(c, targetID)
	delete(c.watched, targetID)
}

// dropInterest must be called with h.mu held.
func (h *Hub) dropInterest(c *Client, targetID uuid.UUID) {
	if set, ok := h.interests[targetID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.interests, targetID)
		}
	}
}

// Notify forwards an event to every connection interested in the target.
// Enqueueing is non-blocking: a full per-connection queue drops its oldest
// pending notification rather than stalling fan-out to the others. Dropped
// notifications are never retried; clients re-sync with a fresh read.
func (h *Hub) Notify(event string, targetID uuid.UUID) {
	notification := Notification{Event: event, TargetID: targetID.String()}
	data, err := json.Marshal(notification)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal notification")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.interests[targetID] {
		if !c.enqueue(data) {
			if h.metrics != nil {
				h.metrics.IncrementCounter("realtime_notifications_dropped")
			}
			log.Warn().
				Str("event", event).
				Str("target_id", targetID.String()).
				Msg("Dropped notification for slow connection")
			continue
		}
		if h.metrics != nil {
			h.metrics.IncrementCounter("realtime_notifications_sent")
		}
	}
}

// InterestedConnections returns how many connections watch a target.
func (h *Hub) InterestedConnections(targetID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.interests[targetID])
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.closeSend()
	}
	h.clients = make(map[*Client]struct{})
	h.interests = make(map[uuid.UUID]map[*Client]struct{})
	log.Info().Msg("Realtime hub shut down, all connections closed")
}
