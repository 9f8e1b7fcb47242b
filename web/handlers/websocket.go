package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/familytree/internal/engine"
)

const (
	subscriberBuffer = 64
	writeTimeout     = 10 * time.Second
)

// EventMessage is the websocket frame sent for every relation change.
type EventMessage struct {
	Type engine.EventType `json:"type"`
	Data engine.Event     `json:"data"`
}

// Subscriber receives encoded relation events from the hub.
type Subscriber interface {
	// Queue returns the channel the hub writes frames to. The hub closes it
	// when the subscriber is dropped.
	Queue() chan []byte

	// Wants reports whether the event should be delivered.
	Wants(event engine.Event) bool

	// Close releases the underlying connection, if any.
	Close()
}

// WebSocketHub fans relation change events out to websocket subscribers.
// A connection may narrow its stream to one member with ?member_id=.
type WebSocketHub struct {
	subscribers map[Subscriber]struct{}
	events      chan engine.Event
	join        chan Subscriber
	leave       chan Subscriber
	origins     []string
	logger      *slog.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWebSocketHub creates a hub. origins lists the host:port values browsers
// may connect from; requests without an Origin header are always accepted.
func NewWebSocketHub(logger *slog.Logger, origins ...string) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		subscribers: make(map[Subscriber]struct{}),
		events:      make(chan engine.Event, 256),
		join:        make(chan Subscriber),
		leave:       make(chan Subscriber),
		origins:     origins,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run processes joins, leaves and events until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case s := <-h.join:
			h.mu.Lock()
			h.subscribers[s] = struct{}{}
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Debug("handlers: websocket subscriber joined", "total", n)

		case s := <-h.leave:
			h.mu.Lock()
			h.drop(s)
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Debug("handlers: websocket subscriber left", "total", n)

		case event := <-h.events:
			h.deliver(event)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *WebSocketHub) deliver(event engine.Event) {
	frame, err := json.Marshal(EventMessage{Type: event.Type, Data: event})
	if err != nil {
		h.logger.Error("handlers: failed to encode relation event", "relation_id", event.RelationID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		if !s.Wants(event) {
			continue
		}
		select {
		case s.Queue() <- frame:
		default:
			h.logger.Warn("handlers: dropping slow websocket subscriber", "relation_id", event.RelationID)
			h.drop(s)
		}
	}
}

// drop removes s and closes its queue. Callers hold h.mu.
func (h *WebSocketHub) drop(s Subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.Queue())
	}
}

// Stop disconnects every subscriber and ends Run.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for s := range h.subscribers {
		h.drop(s)
		s.Close()
	}
	h.mu.Unlock()
}

// PublishRelationEvent queues an engine change event for delivery. It never
// blocks the engine: when the queue is full the event is dropped.
func (h *WebSocketHub) PublishRelationEvent(event engine.Event) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("handlers: websocket event queue full, dropping event", "relation_id", event.RelationID)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Register adds a subscriber to the hub.
func (h *WebSocketHub) Register(s Subscriber) {
	select {
	case h.join <- s:
	case <-h.ctx.Done():
	}
}

// Unregister removes a subscriber from the hub.
func (h *WebSocketHub) Unregister(s Subscriber) {
	select {
	case h.leave <- s:
	case <-h.ctx.Done():
	}
}

func (h *WebSocketHub) originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.origins {
		if u.Host == allowed {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and streams relation events to it.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !h.originAllowed(origin) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("handlers: websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		hub:      h,
		conn:     conn,
		queue:    make(chan []byte, subscriberBuffer),
		memberID: r.URL.Query().Get("member_id"),
	}
	h.Register(c)

	go c.writeLoop()
	go c.readLoop()
}

// wsConn is a websocket-backed Subscriber.
type wsConn struct {
	hub      *WebSocketHub
	conn     *websocket.Conn
	queue    chan []byte
	memberID string
}

func (c *wsConn) Queue() chan []byte { return c.queue }

func (c *wsConn) Wants(event engine.Event) bool {
	return c.memberID == "" || event.FromMemberID == c.memberID || event.ToMemberID == c.memberID
}

func (c *wsConn) Close() {
	_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
}

func (c *wsConn) writeLoop() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for frame := range c.queue {
		ctx, cancel := context.WithTimeout(c.hub.ctx, writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			c.hub.logger.Debug("handlers: websocket write failed", "error", err)
			return
		}
	}
}

// readLoop only detects disconnects; subscribers never send commands.
func (c *wsConn) readLoop() {
	defer c.hub.Unregister(c)
	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil {
			return
		}
	}
}

// MockClient is a channel-backed Subscriber for tests. MemberID narrows
// delivery the same way ?member_id= does for websocket connections.
type MockClient struct {
	SendChan chan []byte
	MemberID string
}

func (m *MockClient) Queue() chan []byte { return m.SendChan }

func (m *MockClient) Wants(event engine.Event) bool {
	return m.MemberID == "" || event.FromMemberID == m.MemberID || event.ToMemberID == m.MemberID
}

func (m *MockClient) Close() {}
