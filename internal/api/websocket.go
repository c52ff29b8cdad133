package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
)

// Message types on the live feed.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsSendBufferSize = 256
	wsBufferSize     = 1024

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is a frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe
// requests. No channels means all of them.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSClient is one live-feed connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

// wsTiming holds the keepalive intervals for one connection.
type wsTiming struct {
	ping time.Duration
	pong time.Duration
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	t := wsTiming{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		pong: time.Duration(cfg.PongTimeout) * time.Second,
	}
	if t.ping <= 0 {
		t.ping = defaultPingInterval
	}
	if t.pong <= 0 {
		t.pong = defaultPongTimeout
	}
	return t
}

// readDeadline is how long a connection may stay silent.
func (t wsTiming) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pong)
}

// handleWebSocket upgrades GET /api/v1/ws.
//
// With auth enabled the request needs a ticket from POST /auth/ws-ticket.
// ?channels=dlms.decoded,dlms.error subscribes up front; without it the
// client receives nothing until it sends a subscribe request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s.auth.Enabled() {
		switch ticket := q.Get("ticket"); {
		case ticket == "":
			writeUnauthorized(w, "ticket query parameter is required")
			return
		case !s.tickets.validate(ticket):
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	var initial []string
	if raw := q.Get("channels"); raw != "" {
		var unknown string
		if initial, unknown = parseChannels(strings.Split(raw, ",")); unknown != "" {
			writeBadRequest(w, "unknown channel: "+unknown)
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}, len(Channels)),
	}
	c.subscribe(initial)
	s.hub.Register(c)

	timing := newWSTiming(s.wsCfg)
	go c.writeLoop(timing)
	go c.readLoop(timing, s.wsCfg.MaxMessageSize)
}

// parseChannels trims and checks channel names, expanding an empty list
// to every channel. The second result is the first unknown name.
func parseChannels(names []string) ([]string, string) {
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
		case slices.Contains(Channels, name):
			out = append(out, name)
		default:
			return nil, name
		}
	}
	if len(out) == 0 {
		return slices.Clone(Channels), ""
	}
	return out, ""
}

// readLoop handles client requests until the connection fails, then
// unregisters the client.
func (c *WSClient) readLoop(t wsTiming, maxSize int) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if maxSize > 0 {
		c.conn.SetReadLimit(int64(maxSize))
	}
	//nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings keep the connection alive
		// with application messages.
		//nolint:errcheck // as above
		c.conn.SetReadDeadline(t.readDeadline())
		c.handleMessage(data)
	}
}

// writeLoop drains the send buffer and pings on every interval. It exits
// when the hub closes the buffer or a write fails.
func (c *WSClient) writeLoop(t wsTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // the peer may already be gone
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(t.pong))
				return
			}
			//nolint:errcheck // a failed deadline surfaces on the write
			c.conn.SetWriteDeadline(time.Now().Add(t.pong))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.pong)); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(req)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

// handleSubscription applies a subscribe or unsubscribe request and
// replies with the changed channels and the resulting active set.
func (c *WSClient) handleSubscription(req wsRequest) {
	var body WSSubscribePayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			c.reply(req.ID, WSTypeError, errorPayload("invalid "+req.Type+" payload"))
			return
		}
	}

	channels, unknown := parseChannels(body.Channels)
	if unknown != "" {
		c.reply(req.ID, WSTypeError, errorPayload("unknown channel: "+unknown))
		return
	}

	if req.Type == WSTypeSubscribe {
		c.subscribe(channels)
	} else {
		c.unsubscribe(channels)
	}
	c.hub.logger.Debug("websocket subscription changed", "type", req.Type, "channels", channels)

	c.reply(req.ID, WSTypeResponse, map[string]any{
		req.Type + "d": channels,
		"active":       c.activeChannels(),
	})
}

func (c *WSClient) subscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// activeChannels returns the subscriptions in Channels order.
func (c *WSClient) activeChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscriptions))
	for _, ch := range Channels {
		if _, ok := c.subscriptions[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// trySend queues data without blocking. It reports false when the buffer
// is full or already closed by the hub.
func (c *WSClient) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
