package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 4096

	channelOrders = "orders"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope is one message on the order stream.
type Envelope struct {
	Seq     int64           `json:"seq"`
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	TS      time.Time       `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Replay  bool            `json:"replay,omitempty"`
}

// Hub fans committed orders out to WebSocket clients. It implements
// model.OrderSink.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	seq     int64
	replay  *replayBuffer
	dropped int64
}

var _ model.OrderSink = (*Hub)(nil)

// NewHub creates a hub that remembers the last replaySize envelopes.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		now:     time.Now,
		clients: make(map[*client]struct{}),
		replay:  newReplayBuffer(replaySize),
	}
}

// PublishOrders broadcasts one envelope per order. Slow clients whose send
// queue is full miss the message; they can recover it with ?since=.
func (h *Hub) PublishOrders(ctx context.Context, orders []model.Order) error {
	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("stream marshal order %d: %w", o.ID, err)
		}

		h.mu.Lock()
		h.seq++
		env := Envelope{
			Seq:     h.seq,
			Channel: channelOrders,
			Symbol:  o.Symbol,
			TS:      h.now().UTC(),
			Data:    data,
		}
		msg, err := json.Marshal(env)
		if err != nil {
			h.mu.Unlock()
			return fmt.Errorf("stream marshal envelope: %w", err)
		}
		h.replay.Push(env.Seq, msg)

		for c := range h.clients {
			if !c.wants(o.Symbol) {
				continue
			}
			select {
			case c.send <- msg:
			default:
				h.dropped++
				h.log.Warn("stream client queue full, dropping message",
					slog.Int64("seq", env.Seq), slog.String("remote", c.remote))
			}
		}
		h.mu.Unlock()
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Seq returns the sequence number of the last published envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ServeWS upgrades the request and registers the client. A since query
// parameter replays buffered envelopes with a greater sequence number.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	c := &client{
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, sendBuffer),
		remote: r.RemoteAddr,
	}
	for _, s := range r.URL.Query()["symbol"] {
		c.subscribe([]string{s})
	}

	h.mu.Lock()
	if raw := r.URL.Query().Get("since"); raw != "" {
		if since, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.backfill(h.replay.Since(since))
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("ws client connected", slog.String("remote", c.remote))
	go c.writePump()
	go c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// client is a single WebSocket peer.
type client struct {
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	remote string

	subMu sync.RWMutex
	subs  map[string]struct{}
}

type clientMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

// wants reports whether the client subscribed to symbol. A client with no
// subscriptions receives everything.
func (c *client) wants(symbol string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[symbol]
	return ok
}

func (c *client) subscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]struct{})
	}
	for _, s := range symbols {
		if s = store.NormalizeSymbol(s); s != "" {
			c.subs[s] = struct{}{}
		}
	}
}

func (c *client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.subs, store.NormalizeSymbol(s))
	}
}

// backfill queues replayed envelopes, marking them as replays. Caller holds
// the hub lock.
func (c *client) backfill(entries []replayEntry) {
	for _, e := range entries {
		var env Envelope
		if json.Unmarshal(e.Data, &env) != nil || !c.wants(env.Symbol) {
			continue
		}
		env.Replay = true
		msg, err := json.Marshal(env)
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		c.hub.log.Info("ws client disconnected", slog.String("remote", c.remote))
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.hub.mu.RLock()
				if _, ok := c.hub.clients[c]; ok {
					select {
					case c.send <- pong:
					default:
					}
				}
				c.hub.mu.RUnlock()
			}
		}
	}
}
