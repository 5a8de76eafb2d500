package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Feed channels a client can subscribe to.
const (
	ChannelTrades    = "trades"
	ChannelPrices    = "prices"
	ChannelSessions  = "sessions"
	ChannelDecisions = "decisions"
	ChannelForum     = "forum"
)

const (
	feedSendBuffer = 256
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 54 * time.Second
	feedWriteWait  = 10 * time.Second
)

// feedMessage is the envelope of every message pushed to clients.
type feedMessage struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// subscribeRequest is what clients send to change their subscriptions.
type subscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// Feed pushes simulation records to websocket clients as they happen. It
// implements store.Recorder so it can sit next to the other recorders.
// Clients that fall behind miss messages rather than slow the run.
type Feed struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	id   string
	feed *Feed
	conn *websocket.Conn
	send chan []byte

	subsMu sync.RWMutex
	subs   map[string]bool
}

// NewFeed creates a Feed with no clients.
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// ServeHTTP handles GET /ws. The optional channels query parameter is a
// comma-separated initial subscription list.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &feedClient{
		id:   uuid.New().String(),
		feed: f,
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
		subs: make(map[string]bool),
	}
	if chans := r.URL.Query().Get("channels"); chans != "" {
		for _, ch := range strings.Split(chans, ",") {
			c.subscribe(strings.TrimSpace(ch))
		}
	}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.logger.Debug("feed client connected", slog.String("client_id", c.id))

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
		f.logger.Debug("feed client disconnected", slog.String("client_id", c.id))
	}
}

// publish sends data to every client subscribed to channel.
func (f *Feed) publish(channel string, data any) error {
	msg, err := json.Marshal(feedMessage{Channel: channel, Data: data})
	if err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// slow client, drop
		}
	}
	return nil
}

// RecordTrade publishes t on the trades channel.
func (f *Feed) RecordTrade(t domain.TradeRecord) error {
	return f.publish(ChannelTrades, t)
}

// RecordStockSnapshot publishes s on the prices channel.
func (f *Feed) RecordStockSnapshot(s domain.StockSnapshot) error {
	return f.publish(ChannelPrices, s)
}

// RecordSessionSnapshot publishes s on the sessions channel.
func (f *Feed) RecordSessionSnapshot(s domain.SessionSnapshot) error {
	return f.publish(ChannelSessions, s)
}

// RecordDailyDecision publishes d on the decisions channel.
func (f *Feed) RecordDailyDecision(d domain.DailyDecision) error {
	return f.publish(ChannelDecisions, d)
}

// RecordForumPost publishes p on the forum channel.
func (f *Feed) RecordForumPost(p domain.ForumPost) error {
	return f.publish(ChannelForum, p)
}

func (c *feedClient) subscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channel]
}

func (c *feedClient) subscribe(channel string) {
	switch channel {
	case ChannelTrades, ChannelPrices, ChannelSessions, ChannelDecisions, ChannelForum:
	default:
		return
	}
	c.subsMu.Lock()
	c.subs[channel] = true
	c.subsMu.Unlock()
}

func (c *feedClient) unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subs, channel)
	c.subsMu.Unlock()
}

// readPump applies subscription requests until the connection drops.
func (c *feedClient) readPump() {
	defer func() {
		c.feed.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.feed.logger.Warn("feed read failed",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		for _, ch := range req.Channels {
			switch req.Op {
			case "subscribe":
				c.subscribe(ch)
			case "unsubscribe":
				c.unsubscribe(ch)
			}
		}
	}
}

// writePump drains the send buffer and keeps the connection alive.
func (c *feedClient) writePump() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
