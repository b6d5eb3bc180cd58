package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is token-authenticated, not cookie-authenticated, so
	// cross-origin upgrades carry no ambient credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is the inbound frame shape.
type clientMessage struct {
	Action     string `json:"action"`
	Topic      string `json:"topic,omitempty"`
	QuestionID uint   `json:"question_id,omitempty"`
	IsTyping   bool   `json:"is_typing,omitempty"`
}

// wsClient is one live connection. All writes to the conn go through the
// writer goroutine draining out; the read loop never touches the socket for
// writing.
type wsClient struct {
	sessionID string
	userID    uint
	username  string
	conn      *websocket.Conn
	hub       *fanout.Hub

	mu   sync.Mutex
	subs map[string]*fanout.Subscription
	out  chan events.Event
	done chan struct{}
}

type WSHandler struct {
	hub *fanout.Hub

	mu sync.Mutex
	// connections per user, so USER_STATUS offline only fires when the last
	// tab closes
	online map[uint]int
}

func NewWSHandler(hub *fanout.Hub) *WSHandler {
	return &WSHandler{hub: hub, online: make(map[uint]int)}
}

// Serve upgrades GET /ws. Authentication comes from the token query param
// resolved by the middleware before this runs.
func (h *WSHandler) Serve(c *gin.Context) {
	user := middleware.CurrentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		sessionID: uuid.NewString(),
		userID:    user.ID,
		username:  user.Name(),
		conn:      conn,
		hub:       h.hub,
		subs:      make(map[string]*fanout.Subscription),
		out:       make(chan events.Event, 32),
		done:      make(chan struct{}),
	}

	// Every connection listens on its owner's private queue.
	client.subscribe(events.UserTopic(user.ID))

	h.markOnline(client)
	go client.writeLoop()
	client.readLoop()
	h.markOffline(client)
}

func (h *WSHandler) markOnline(c *wsClient) {
	h.mu.Lock()
	h.online[c.userID]++
	first := h.online[c.userID] == 1
	h.mu.Unlock()

	log.Printf("ws: session %s connected for user %d", c.sessionID, c.userID)
	if first {
		h.hub.Publish(events.TopicUserStatus, events.New(events.UserStatusPayload{
			UserID:   c.userID,
			IsOnline: true,
		}))
	}
}

func (h *WSHandler) markOffline(c *wsClient) {
	h.mu.Lock()
	h.online[c.userID]--
	last := h.online[c.userID] == 0
	if last {
		delete(h.online, c.userID)
	}
	h.mu.Unlock()

	c.close()
	log.Printf("ws: session %s disconnected for user %d", c.sessionID, c.userID)
	if last {
		h.hub.Publish(events.TopicUserStatus, events.New(events.UserStatusPayload{
			UserID:   c.userID,
			IsOnline: false,
		}))
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *WSHandler) IsOnline(userID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online[userID] > 0
}

func (c *wsClient) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: session %s read error: %v", c.sessionID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *wsClient) handle(msg clientMessage) {
	switch msg.Action {
	case "subscribe":
		if c.allowedTopic(msg.Topic) {
			c.subscribe(msg.Topic)
		}
	case "unsubscribe":
		c.unsubscribe(msg.Topic)
	case "ping":
		c.offer(events.New(events.PongPayload{Timestamp: time.Now().UnixMilli()}))
	case "typing":
		if msg.QuestionID == 0 {
			return
		}
		c.hub.Publish(events.QuestionTopic(msg.QuestionID), events.New(events.TypingPayload{
			QuestionID: msg.QuestionID,
			Username:   c.username,
			IsTyping:   msg.IsTyping,
		}))
	}
}

// allowedTopic restricts subscriptions to the public scopes plus the
// client's own private queue.
func (c *wsClient) allowedTopic(topic string) bool {
	if topic == events.TopicQuestions || topic == events.TopicUserStatus {
		return true
	}
	if rest, ok := strings.CutPrefix(topic, "questions/"); ok {
		id, err := strconv.ParseUint(rest, 10, 32)
		return err == nil && id > 0
	}
	return topic == events.UserTopic(c.userID)
}

func (c *wsClient) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[topic]; ok {
		return
	}
	sub := c.hub.Subscribe(topic)
	c.subs[topic] = sub
	go c.pump(sub)
}

func (c *wsClient) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	if ok {
		delete(c.subs, topic)
	}
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// pump moves one subscription's events onto the shared outbound channel.
func (c *wsClient) pump(sub *fanout.Subscription) {
	for ev := range sub.C() {
		select {
		case c.out <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) offer(ev events.Event) {
	select {
	case c.out <- ev:
	case <-c.done:
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.out:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	subs := make([]*fanout.Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = make(map[string]*fanout.Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	close(c.done)
}
