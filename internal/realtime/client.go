package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Inbound operations. The client declares interest explicitly; the gateway
// never infers it.
const (
	opWatch     = "watch"
	opUnwatch   = "unwatch"
	opHeartbeat = "heartbeat"
)

// eventHeartbeatAck answers a client heartbeat.
const eventHeartbeatAck = "heartbeat_ack"

// inboundMessage is what a connected client may send.
type inboundMessage struct {
	Op      string   `json:"op"`
	Targets []string `json:"targets,omitempty"`
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	actorID uuid.UUID // uuid.Nil for anonymous viewers

	// mu guards send against enqueue-after-close: the heartbeat ack
	// enqueues from readPump without the hub lock, so closing the queue
	// has to be serialized here, not in the hub.
	mu     sync.Mutex
	closed bool
	send   chan []byte

	// watched mirrors the hub's interest entries for this client so
	// Unregister can clear them without scanning every target.
	watched map[uuid.UUID]struct{}
}

// NewClient wraps an upgraded websocket connection.
func NewClient(hub *Hub, conn *websocket.Conn, actorID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.queueDepth),
		actorID: actorID,
		watched: make(map[uuid.UUID]struct{}),
	}
}

// Start registers the client and begins its pumps.
func (c *Client) Start() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

// enqueue offers data to the outbound queue without blocking. When the queue
// is full the oldest pending notification is discarded to make room; returns
// false if the client is closed or the message still could not be queued.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
	}

	// Queue full: drop oldest, then retry once.
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound queue exactly once. Safe to call concurrently
// with enqueue from any goroutine.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes inbound interest declarations until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}

		switch msg.Op {
		case opWatch:
			for _, id := range c.parseTargets(msg.Targets) {
				c.hub.Watch(c, id)
			}
		case opUnwatch:
			for _, id := range c.parseTargets(msg.Targets) {
				c.hub.Unwatch(c, id)
			}
		case opHeartbeat:
			if data, err := json.Marshal(Notification{Event: eventHeartbeatAck}); err == nil {
				c.enqueue(data)
			}
		default:
			log.Debug().Str("op", msg.Op).Msg("Ignoring unknown realtime op")
		}
	}
}

func (c *Client) parseTargets(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			log.Debug().Str("target", s).Msg("Ignoring malformed target id")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// writePump drains the outbound queue onto the wire. Every write carries the
// hub's send timeout so one dead peer cannot hold the pump; a failed write
// tears the connection down and the client must reconnect and re-fetch.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.sendTimeout)); err != nil {
				log.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the queue
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Msg("Failed to write notification, dropping connection")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.sendTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
