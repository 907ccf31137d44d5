package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TradeChannel names the per-symbol channel clients subscribe to.
func TradeChannel(symbol string) string { return "trades:" + symbol }

// Hub bridges the realtime notifier to websocket clients: every new trade
// event is fanned out to clients subscribed to the symbol's channel.
type Hub struct {
	notifier port.Notifier
	log      *logrus.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub(notifier port.Notifier, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		notifier: notifier,
		log:      log,
		clients:  make(map[*Client]bool),
	}
}

// Run consumes the trade subscription until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	events, stop, err := h.notifier.SubscribeTrades(ctx)
	if err != nil {
		return err
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-events:
			if !ok {
				return nil
			}
			h.BroadcastTrade(t)
		}
	}
}

type tradeEvent struct {
	Channel string          `json:"channel"`
	Trade   json.RawMessage `json:"trade"`
}

// BroadcastTrade pushes one trade to every client on its symbol channel.
func (h *Hub) BroadcastTrade(t *domain.Trade) {
	payload, err := json.Marshal(struct {
		ID        string    `json:"id"`
		Account   string    `json:"account"`
		Symbol    string    `json:"symbol"`
		Side      string    `json:"side"`
		Price     string    `json:"price"`
		Quantity  string    `json:"quantity"`
		CreatedAt time.Time `json:"created_at"`
	}{t.ID, t.Account, t.Symbol, string(t.Side), t.Price.String(), t.Quantity.String(), t.CreatedAt})
	if err != nil {
		h.log.WithError(err).Warn("trade marshal failed")
		return
	}

	channel := TradeChannel(t.Symbol)
	msg, err := json.Marshal(tradeEvent{Channel: channel, Trade: payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.IsSubscribed(channel) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, drop the event for this client
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"client": c.id, "total": n}).Info("ws client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"client": c.id, "total": n}).Info("ws client disconnected")
}

// Client is one websocket connection with its channel subscriptions.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu sync.RWMutex
	subs   map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
		id:   uuid.NewString(),
		subs: make(map[string]bool),
	}
}

func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channel]
}

func (c *Client) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subs[channel] = true
	c.subsMu.Unlock()
}

func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subs, channel)
	c.subsMu.Unlock()
}

type clientMessage struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Op {
		case "subscribe":
			if msg.Channel != "" {
				c.Subscribe(msg.Channel)
			}
		case "unsubscribe":
			c.Unsubscribe(msg.Channel)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleConnection upgrades a request and starts the client pumps.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	client := newClient(h, conn)
	h.register(client)
	go client.writePump()
	go client.readPump()
}
