package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	sendQueueSize = 64
)

// Message is the JSON frame delivered to subscribers. Stream routes it
// on the multiplexed socket; Event names what happened.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// clients send these frames to manage their subscriptions mid-session.
type controlFrame struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans realtime messages out over a single multiplexed WebSocket per
// client. Subscriptions are tracked per stream and per user so both
// stream-wide and user-targeted broadcasts stay O(receivers).
type Hub struct {
	mu sync.RWMutex
	// stream -> userID -> connected clients
	byStream map[string]map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		byStream: make(map[string]map[string]map[*client]struct{}),
		log:      logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
	}
}

// Serve upgrades the request and pumps messages until the peer goes
// away. A nil allowed set grants every stream; otherwise subscribe
// requests outside the set are ignored.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		hub:     h,
		socket:  socket,
		userID:  userID,
		send:    make(chan Message, sendQueueSize),
		done:    make(chan struct{}),
		allowed: allowed,
	}
	h.subscribe(cl, streams)

	go cl.writeLoop()
	cl.readLoop()
}

// BroadcastToUser sends a message to every connection the user holds on
// the given stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	var stalled []*client
	for cl := range h.byStream[stream][userID] {
		if !cl.enqueue(message) {
			stalled = append(stalled, cl)
		}
	}
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

// BroadcastToUsers sends the same message to several users at once.
func (h *Hub) BroadcastToUsers(stream string, userIDs []string, message Message) {
	for _, userID := range userIDs {
		h.BroadcastToUser(stream, userID, message)
	}
}

// BroadcastStream sends a message to every subscriber of the stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	var stalled []*client
	for _, clients := range h.byStream[stream] {
		for cl := range clients {
			if !cl.enqueue(message) {
				stalled = append(stalled, cl)
			}
		}
	}
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

// dropStalled disconnects clients whose queues were full during a
// broadcast. Closing re-acquires the hub lock, so broadcasts collect
// stalled clients under RLock and hand them here after releasing it.
func (h *Hub) dropStalled(stalled []*client) {
	for _, cl := range stalled {
		h.log.Warn("dropping stalled client", zap.String("user_id", cl.userID))
		cl.close()
	}
}

func (h *Hub) subscribe(cl *client, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range dedupeStreams(streams) {
		if !cl.mayJoin(stream) {
			h.log.Warn("ignoring unauthorized stream",
				zap.String("stream", stream),
				zap.String("user_id", cl.userID))
			continue
		}
		if cl.streams == nil {
			cl.streams = make(map[string]struct{})
		}
		if _, joined := cl.streams[stream]; joined {
			continue
		}

		users := h.byStream[stream]
		if users == nil {
			users = make(map[string]map[*client]struct{})
			h.byStream[stream] = users
		}
		if users[cl.userID] == nil {
			users[cl.userID] = make(map[*client]struct{})
		}

		cl.streams[stream] = struct{}{}
		users[cl.userID][cl] = struct{}{}
	}
}

func (h *Hub) unsubscribe(cl *client, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range dedupeStreams(streams) {
		h.dropLocked(cl, stream)
		delete(cl.streams, stream)
	}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range cl.streams {
		h.dropLocked(cl, stream)
	}
	cl.streams = nil
}

func (h *Hub) dropLocked(cl *client, stream string) {
	users := h.byStream[stream]
	if users == nil {
		return
	}

	clients := users[cl.userID]
	delete(clients, cl)
	if len(clients) == 0 {
		delete(users, cl.userID)
	}
	if len(users) == 0 {
		delete(h.byStream, stream)
	}
}

type client struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	streams map[string]struct{}
	send    chan Message
	done    chan struct{}
	once    sync.Once
	allowed map[string]struct{}
}

// enqueue queues a message without ever blocking the broadcaster. A
// false return means the queue was full and the client should be
// treated as stalled. A client already shutting down reports success so
// it is not closed a second time.
func (c *client) enqueue(message Message) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *client) mayJoin(stream string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

func (c *client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var frame controlFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.hub.log.Debug("invalid control frame", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		c.handleControl(frame)
	}
}

func (c *client) handleControl(frame controlFrame) {
	switch strings.ToLower(strings.TrimSpace(frame.Action)) {
	case "subscribe":
		c.hub.subscribe(c, frame.Streams)
	case "unsubscribe":
		c.hub.unsubscribe(c, frame.Streams)
	case "ping":
		c.enqueue(Message{Event: "pong"})
	default:
		c.hub.log.Debug("unsupported control action",
			zap.String("action", frame.Action),
			zap.String("user_id", c.userID))
	}
}

func (c *client) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close is idempotent. The done channel, not the send channel, signals
// shutdown so concurrent enqueues can never hit a closed channel.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.unregister(c)
		if c.socket != nil {
			_ = c.socket.Close()
		}
	})
}

// sameOriginOrLoopback accepts requests from the API's own host and from
// localhost during development. Browsers omit Origin on same-origin
// WebSocket connects in some cases, so an empty header is allowed.
func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := bareHost(origin)
	return originHost == bareHost(r.Host) || isLoopback(originHost)
}

func bareHost(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil {
			value = parsed.Host
		}
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return host
	}
	return value
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func dedupeStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
