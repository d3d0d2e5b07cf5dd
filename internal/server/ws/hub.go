package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod must stay below pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps subscribe/unsubscribe frames from the browser.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outbound queue. Messages to a full queue are dropped.
	sendBufferSize = 256
)

// channels the hub relays. Quotes go to everyone; settlements and balances
// only to the connection whose session owns them.
var channels = []string{
	domain.ChannelQuotes,
	domain.ChannelSettlements,
	domain.ChannelBalances,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	owner string
	send  chan []byte
	subs  map[string]bool
	mu    sync.RWMutex
}

// subscribeMsg is sent by clients to narrow or widen their channel set.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// broadcastMsg is one bus payload. owner is empty for public channels.
type broadcastMsg struct {
	channel string
	owner   string
	data    []byte
}

// Config is reported to clients in the hello message.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub relays signal bus events to connected websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := cfg.Mode
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run subscribes to the bus and serves the client loop until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range channels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.ErrorContext(ctx, "ws: subscribe failed",
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
			continue
		}
		go h.forward(ctx, ch, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.String("owner_id", c.owner), slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.String("owner_id", c.owner), slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client", slog.String("owner_id", c.owner))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward relays one bus channel into the broadcast loop, tagging private
// events with their owner.
func (h *Hub) forward(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			msg := broadcastMsg{channel: channel, data: data}
			if channel != domain.ChannelQuotes {
				var head struct {
					OwnerID string `json:"owner_id"`
				}
				if err := json.Unmarshal(data, &head); err != nil || head.OwnerID == "" {
					h.logger.Warn("ws: dropping event without owner", slog.String("channel", channel))
					continue
				}
				msg.owner = head.OwnerID
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the session's connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	owner := session.OwnerID(r.Context())
	if owner == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		owner: owner,
		send:  make(chan []byte, sendBufferSize),
		subs:  make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(msg broadcastMsg) bool {
	if msg.owner != "" && msg.owner != c.owner {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[msg.channel]
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		if !known(ch) {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func known(channel string) bool {
	for _, ch := range channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// sendHello tells the client the connection is live and who it belongs to.
func (c *client) sendHello() {
	uptime := max(int64(time.Since(c.hub.startedAt).Seconds()), 0)
	msg, err := json.Marshal(map[string]any{
		"event":          "hello",
		"owner_id":       c.owner,
		"mode":           c.hub.mode,
		"channels":       channels,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
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
