package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

const (
	blocksChannel = "blocks"
	bookPrefix    = "book:" // book:SELL/RECEIVE
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// parseBookChannel splits "book:SELL/RECEIVE"
func parseBookChannel(ch string) (sell, receive asset.Symbol, ok bool) {
	pair, found := strings.CutPrefix(ch, bookPrefix)
	if !found {
		return "", "", false
	}
	a, b, found := strings.Cut(pair, "/")
	if !found || a == "" || b == "" {
		return "", "", false
	}
	return asset.Symbol(a), asset.Symbol(b), true
}

func validChannel(ch string) bool {
	if ch == blocksChannel {
		return true
	}
	_, _, ok := parseBookChannel(ch)
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are policed by the cors wrapper on the router
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains active WebSocket connections and fans messages out to the
// clients subscribed to a channel
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	dropped    uint64
	log        *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run tracks connecting and leaving clients until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("ws client connected", zap.String("client", client.id), zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("ws client disconnected", zap.String("client", client.id), zap.Int("total", n))
		}
	}
}

// Channels lists every channel at least one client subscribes to
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool)
	for client := range h.clients {
		client.subsMu.RLock()
		for ch := range client.subscriptions {
			seen[ch] = true
		}
		client.subsMu.RUnlock()
	}
	out := make([]string, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Dropped counts messages skipped because a client's buffer was full
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// BroadcastToChannel sends a message to all clients subscribed to a channel.
// Slow clients lose messages rather than stall the block loop.
func (h *Hub) BroadcastToChannel(channel string, data any) {
	message, err := json.Marshal(data)
	if err != nil {
		h.log.Error("ws marshal failed", zap.String("channel", channel), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.IsSubscribed(channel) {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.dropped++
			h.log.Debug("ws client lagging", zap.String("client", client.id), zap.String("channel", channel))
		}
	}
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

// Subscribe adds the well-formed channels and returns the rest
func (c *Client) Subscribe(channels ...string) (rejected []string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range channels {
		if !validChannel(ch) {
			rejected = append(rejected, ch)
			continue
		}
		c.subscriptions[ch] = true
	}
	return rejected
}

func (c *Client) Unsubscribe(channels ...string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
}

// reply queues a control message for this client only
func (c *Client) reply(ack WSAck) {
	message, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

// readPump handles subscription requests until the connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
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
				c.hub.log.Warn("ws read failed", zap.String("client", c.id), zap.Error(err))
			}
			break
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(WSAck{Type: "error", Error: "invalid message"})
			continue
		}

		switch req.Op {
		case "subscribe":
			if rejected := c.Subscribe(req.Channels...); len(rejected) > 0 {
				c.reply(WSAck{Type: "error", Channels: rejected, Error: "unknown channel"})
				continue
			}
			c.reply(WSAck{Type: "subscribed", Channels: req.Channels})
		case "unsubscribe":
			c.Unsubscribe(req.Channels...)
			c.reply(WSAck{Type: "unsubscribed", Channels: req.Channels})
		default:
			c.reply(WSAck{Type: "error", Error: "unknown op " + req.Op})
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
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

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
