package websocket

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rcourtman/podsmon/internal/buffer"
	"github.com/rcourtman/podsmon/internal/resources"
	"github.com/rs/zerolog/log"
)

const (
	maxWebSocketInboundMessageSize = 16 * 1024
	clientSendBuffer               = 256

	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	hubPingEvery = 30 * time.Second

	// How long fanOut waits on a full client buffer before dropping the client.
	slowClientGrace = 2 * time.Second

	historySize = 200
)

// Client represents a WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	sendMu sync.Mutex
	closed bool
}

// enqueue queues data without blocking. It reports false when the buffer is
// full or the client is already closed.
func (c *Client) enqueue(data []byte) bool {
	return c.enqueueWithin(data, 0)
}

// enqueueWithin waits up to wait for room in the send buffer.
func (c *Client) enqueueWithin(data []byte, wait time.Duration) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.send <- data:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	getState       func() interface{} // Function to get current state
	allowedOrigins []string
	trustedProxy   func(ip string) bool

	// Counts change once per member during a sync; only the latest per kind
	// is sent, at most once per coalesceWindow.
	coalesceWindow time.Duration
	pendingCounts  map[resources.Kind]CountsEvent

	slowClientWait time.Duration

	// Recent structural events, served on requestHistory.
	history *buffer.Ring[HistoryEntry]

	upgrader websocket.Upgrader
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ResourceEvent is the payload of added, renamed and removed messages.
type ResourceEvent struct {
	Kind   resources.Kind   `json:"kind"`
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Status resources.Status `json:"status"`
}

// HistoryEntry is one retained structural event.
type HistoryEntry struct {
	Type      string        `json:"type"`
	Event     ResourceEvent `json:"event"`
	Timestamp string        `json:"timestamp"`
}

// CountsEvent is the payload of counts messages.
type CountsEvent struct {
	Kind   resources.Kind   `json:"kind"`
	Len    int              `json:"len"`
	Counts resources.Counts `json:"counts"`
}

// NewHub creates a new WebSocket hub
func NewHub(getState func() interface{}) *Hub {
	h := &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		stopChan:       make(chan struct{}),
		getState:       getState,
		coalesceWindow: 100 * time.Millisecond,
		pendingCounts:  make(map[resources.Kind]CountsEvent),
		slowClientWait: slowClientGrace,
		history:        buffer.New[HistoryEntry](historySize),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024 * 4,
		WriteBufferSize: 1024 * 64, // initial state can be large
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetStateGetter sets the state getter function
func (h *Hub) SetStateGetter(getState func() interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getState = getState
}

// SetAllowedOrigins replaces the browser origins allowed to connect. "*"
// allows any origin.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowedOrigins = append([]string(nil), origins...)
}

// SetTrustedProxyChecker decides which peers may supply X-Forwarded-* headers.
func (h *Hub) SetTrustedProxyChecker(fn func(ip string) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trustedProxy = fn
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	pingTicker := time.NewTicker(hubPingEvery)
	defer pingTicker.Stop()
	flushTicker := time.NewTicker(h.coalesceWindow)
	defer flushTicker.Stop()

	for {
		select {
		case <-h.stopChan:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client", client.id).Msg("WebSocket client connected")
			h.sendInitial(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.mu.Unlock()
				client.closeSend()
				log.Info().Str("client", client.id).Msg("WebSocket client disconnected")
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-flushTicker.C:
			h.flushCounts()

		case <-pingTicker.C:
			h.sendPing()
		}
	}
}

// Stop shuts the hub down and closes every client. Safe to call repeatedly.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

func (h *Hub) stopped() bool {
	select {
	case <-h.stopChan:
		return true
	default:
		return false
	}
}

func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.enqueueWithin(message, h.slowClientWait) {
			continue
		}
		// Client's send channel is full, drop it
		log.Warn().Str("client", client.id).Msg("WebSocket client too slow; disconnecting")
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		client.closeSend()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.closeSend()
	}
}

func (h *Hub) sendInitial(client *Client) {
	welcome := Message{
		Type: "welcome",
		Data: map[string]string{"message": "Connected to podsmon event stream", "client": client.id},
	}
	h.sendTo(client, welcome)

	h.mu.RLock()
	getState := h.getState
	h.mu.RUnlock()
	if getState == nil {
		log.Warn().Msg("No getState function defined")
		return
	}
	h.sendTo(client, Message{Type: "initialState", Data: getState()})
}

func (h *Hub) sendTo(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Str("client", client.id).Msg("Failed to marshal WebSocket message")
		return
	}
	if !client.enqueue(data) {
		log.Warn().Str("client", client.id).Str("type", msg.Type).Msg("Client send buffer full, message skipped")
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Debug().
		Str("origin", r.Header.Get("Origin")).
		Str("host", r.Host).
		Str("userAgent", r.Header.Get("User-Agent")).
		Msg("WebSocket upgrade request")

	if h.stopped() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxWebSocketInboundMessageSize)

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		id:   uuid.NewString(),
	}

	if !h.tryRegisterClient(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) tryRegisterClient(client *Client) bool {
	select {
	case <-h.stopChan:
		return false
	case h.register <- client:
		return true
	}
}

// Attach forwards structural events and count changes of a collection to
// every client. Handlers run on the goroutine that drives the collection.
func (h *Hub) Attach(o *resources.Observable) {
	kind := o.Kind()
	o.ConnectAdded(func(r *resources.Resource) { h.BroadcastResourceEvent("added", r) })
	o.ConnectRenamed(func(r *resources.Resource) { h.BroadcastResourceEvent("renamed", r) })
	o.ConnectRemoved(func(r *resources.Resource) { h.BroadcastResourceEvent("removed", r) })
	o.ConnectCountsChanged(func(c resources.Counts) {
		h.queueCounts(CountsEvent{Kind: kind, Len: c.Total(), Counts: c})
	})
}

// BroadcastResourceEvent sends an added, renamed or removed message.
func (h *Hub) BroadcastResourceEvent(eventType string, r *resources.Resource) {
	ev := ResourceEvent{Kind: r.Kind(), ID: r.ID(), Name: r.Name(), Status: r.Status()}
	h.history.Push(HistoryEntry{Type: eventType, Event: ev, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	h.deliver(Message{Type: eventType, Data: ev})
}

// History returns the retained structural events, oldest first.
func (h *Hub) History() []HistoryEntry {
	return h.history.Items()
}

func (h *Hub) queueCounts(ev CountsEvent) {
	h.mu.Lock()
	h.pendingCounts[ev.Kind] = ev
	h.mu.Unlock()
}

func (h *Hub) flushCounts() {
	h.mu.Lock()
	if len(h.pendingCounts) == 0 {
		h.mu.Unlock()
		return
	}
	pending := h.pendingCounts
	h.pendingCounts = make(map[resources.Kind]CountsEvent)
	h.mu.Unlock()

	for _, kind := range []resources.Kind{resources.KindContainer, resources.KindPod, resources.KindImage} {
		if ev, ok := pending[kind]; ok {
			h.sendAll(Message{Type: "counts", Data: ev})
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver queues a structural event for every client. It blocks until the
// hub loop has room or the hub stops, so events are never dropped or
// reordered. Must not be called from the hub loop.
func (h *Hub) deliver(msg Message) {
	data, ok := h.encode(msg)
	if !ok {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.stopChan:
	}
}

// sendAll writes straight to every client. Only the hub loop calls it, so
// counts and pings never queue behind the broadcast channel.
func (h *Hub) sendAll(msg Message) {
	if data, ok := h.encode(msg); ok {
		h.fanOut(data)
	}
}

func (h *Hub) encode(msg Message) ([]byte, bool) {
	if h.stopped() {
		return nil, false
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return nil, false
	}
	return data, true
}

// sendPing sends a ping message to all clients
func (h *Hub) sendPing() {
	msg := Message{
		Type: "ping",
		Data: map[string]int64{"timestamp": time.Now().Unix()},
	}
	h.sendAll(msg)
}

// checkOrigin allows non-browser clients, same-origin requests, configured
// origins, and private-network origins from private peers when no origins
// are configured.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	h.mu.RLock()
	allowed := h.allowedOrigins
	trusted := h.trustedProxy
	h.mu.RUnlock()

	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(strings.TrimRight(candidate, "/"), origin) {
			return true
		}
	}

	peer := peerIP(r.RemoteAddr)
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if trusted != nil && trusted(peer) {
		if fwd := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			host = fwd
		}
		proto := r.Header.Get("X-Forwarded-Proto")
		if proto == "" {
			proto = r.Header.Get("X-Forwarded-Scheme")
		}
		scheme = normalizeForwardedProto(proto, scheme)
	}
	if strings.EqualFold(parsed.Scheme, scheme) && strings.EqualFold(parsed.Host, host) {
		return true
	}

	if len(allowed) > 0 {
		return false
	}
	return isValidPrivateOrigin(parsed.Hostname()) && isPrivatePeer(peer)
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// normalizeForwardedProto maps the first X-Forwarded-Proto entry to http or
// https. ws and wss come from proxies that forward the upgrade scheme.
func normalizeForwardedProto(proto, fallback string) string {
	proto = strings.ToLower(firstHeaderValue(proto))
	switch proto {
	case "":
		return fallback
	case "ws":
		return "http"
	case "wss":
		return "https"
	default:
		return proto
	}
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isPrivatePeer(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && (parsed.IsLoopback() || parsed.IsPrivate())
}

// isValidPrivateOrigin reports whether host names a loopback or private
// address, or a short .local/.lan name.
func isValidPrivateOrigin(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".lan") {
		labels := strings.Split(host, ".")
		return len(labels) >= 2 && len(labels) <= 3
	}
	return false
}

// readPump handles incoming messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopChan:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("WebSocket read error")
			} else {
				log.Debug().Err(err).Str("client", c.id).Msg("WebSocket closed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("Failed to unmarshal WebSocket message")
			continue
		}

		switch msg.Type {
		case "ping":
			c.hub.sendTo(c, Message{
				Type: "pong",
				Data: map[string]int64{"timestamp": time.Now().Unix()},
			})
		case "requestData":
			c.hub.mu.RLock()
			getState := c.hub.getState
			c.hub.mu.RUnlock()
			if getState != nil {
				c.hub.sendTo(c, Message{Type: "initialState", Data: getState()})
			}
		case "requestHistory":
			c.hub.sendTo(c, Message{Type: "history", Data: c.hub.History()})
		default:
			log.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Received WebSocket message")
		}
	}
}

// writePump handles outgoing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("client", c.id).Msg("Failed to write message")
				return
			}

			// Drain anything queued meanwhile
			n := len(c.send)
			for i := 0; i < n; i++ {
				msg, ok := <-c.send
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
