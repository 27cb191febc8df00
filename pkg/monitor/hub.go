package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Size of each client's outbound buffer.
	sendBufferSize = 256
)

// Channel names for subscriptions.
const (
	ChannelPhases  = "phases"
	ChannelTrials  = "trials"
	ChannelSession = "session"
)

// Message types.
const (
	EventTypePhase       = "phase"
	EventTypeTrial       = "trial"
	EventTypeSession     = "session"
	EventTypeSubscribe   = "subscribe"
	EventTypeUnsubscribe = "unsubscribe"
	EventTypePing        = "ping"
	EventTypePong        = "pong"
	EventTypeError       = "error"
)

// defaultChannels are the subscriptions a new client starts with. Phase
// events arrive several times per trial and are opt-in.
var defaultChannels = []string{ChannelTrials, ChannelSession}

// Message is the envelope for every frame in either direction.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Channels  []string    `json:"channels,omitempty"`
}

func newMessage(typ string, data interface{}) *Message {
	return &Message{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The monitor binds to the lab network only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client is one connected monitor page.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// send is closed by the hub; sendMu and closed keep the read pump
	// from queueing onto it afterwards.
	send   chan []byte
	sendMu sync.Mutex
	closed bool

	subMu         sync.RWMutex
	subscriptions map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]bool),
	}
	c.Subscribe(defaultChannels...)
	return c
}

// Subscribe adds channels to the client's subscriptions.
func (c *Client) Subscribe(channels ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range channels {
		c.subscriptions[ch] = true
	}
}

// Unsubscribe removes channels from the client's subscriptions.
func (c *Client) Unsubscribe(channels ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
}

// IsSubscribed reports whether the client receives channel.
func (c *Client) IsSubscribed(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[monitor] read error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid_json", "Failed to parse message")
		return
	}

	switch msg.Type {
	case EventTypeSubscribe, EventTypeUnsubscribe:
		valid := validChannels(msg.Channels)
		if len(valid) == 0 {
			c.sendError("invalid_subscribe", "No known channels specified")
			return
		}
		if msg.Type == EventTypeSubscribe {
			c.Subscribe(valid...)
		} else {
			c.Unsubscribe(valid...)
		}
	case EventTypePing:
		c.trySend(newMessage(EventTypePong, nil))
	default:
		log.Printf("[monitor] unknown message type: %s", msg.Type)
	}
}

func validChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		switch ch {
		case ChannelPhases, ChannelTrials, ChannelSession:
			out = append(out, ch)
		}
	}
	return out
}

func (c *Client) sendError(code, message string) {
	c.trySend(newMessage(EventTypeError, map[string]string{
		"code":    code,
		"message": message,
	}))
}

// trySend queues msg without blocking; a full buffer drops it.
func (c *Client) trySend(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.queue(data)
}

// queue reports whether data was buffered. It never sends on a closed
// channel.
func (c *Client) queue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once, which ends the write pump.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

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
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Hub
// -----------------------------------------------------------------------------

// Hub keeps the connected clients and fans messages out to them. Publishing
// never blocks the caller: the task's frame loop runs on the other side.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. Call Run in a goroutine before serving clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop; it returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.closeSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("[monitor] client connected (total: %d)", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("[monitor] client disconnected (total: %d)", n)
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends msg to every client subscribed to channel. Clients whose
// buffer is full miss the message.
func (h *Hub) Publish(channel string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.IsSubscribed(channel) {
			client.queue(data)
		}
	}
	return nil
}

// serveWS upgrades the request and starts the client's pumps.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[monitor] upgrade failed: %v", err)
		return
	}
	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
