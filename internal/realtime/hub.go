package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBuffer  = 32
	maxReadSize = 4096
)

// Authorizer decides whether a user may subscribe to a task's topic.
type Authorizer func(ctx context.Context, userID, taskID string) error

type clientFrame struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
}

type ackFrame struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId,omitempty"`
	Message string `json:"message,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	topics map[string]struct{}
}

// Hub tracks WebSocket clients and the task topics they joined.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	topics    map[string]map[*client]struct{}
	authorize Authorizer
	upgrader  websocket.Upgrader
	log       logrus.FieldLogger
}

func NewHub(authorize Authorizer, allowedOrigin string, log logrus.FieldLogger) *Hub {
	h := &Hub{
		clients:   make(map[*client]struct{}),
		topics:    make(map[string]map[*client]struct{}),
		authorize: authorize,
		log:       log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin == "" || allowedOrigin == "*" || strings.EqualFold(origin, allowedOrigin)
		},
	}
	return h
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	c := &client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.writePump(c)
		close(done)
	}()
	h.readPump(r.Context(), c)
	h.unregister(c)
	<-done
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.TaskID == "" {
			h.reply(c, ackFrame{Type: "error", Message: "invalid message"})
			continue
		}
		switch frame.Type {
		case "join-task":
			if err := h.authorize(ctx, c.userID, frame.TaskID); err != nil {
				h.reply(c, ackFrame{Type: "error", TaskID: frame.TaskID, Message: "not allowed to join this task"})
				continue
			}
			h.join(c, TaskTopic(frame.TaskID))
			h.reply(c, ackFrame{Type: "joined", TaskID: frame.TaskID})
		case "leave-task":
			h.leave(c, TaskTopic(frame.TaskID))
			h.reply(c, ackFrame{Type: "left", TaskID: frame.TaskID})
		default:
			h.reply(c, ackFrame{Type: "error", TaskID: frame.TaskID, Message: "unknown message type"})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (h *Hub) reply(c *client, ack ackFrame) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) join(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subscribers, ok := h.topics[topic]
	if !ok {
		subscribers = make(map[*client]struct{})
		h.topics[topic] = subscribers
	}
	subscribers[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) leave(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, topic)
}

func (h *Hub) removeLocked(c *client, topic string) {
	delete(c.topics, topic)
	subscribers, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subscribers, c)
	if len(subscribers) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.removeLocked(c, topic)
	}
	delete(h.clients, c)
	close(c.send)
}

// Deliver hands data to every client subscribed to topic and returns how
// many accepted it. A client whose buffer is full misses the event.
func (h *Hub) Deliver(topic string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.topics[topic] {
		select {
		case c.send <- data:
			delivered++
		default:
			h.log.WithFields(logrus.Fields{"topic": topic, "user_id": c.userID}).Warn("dropping realtime event for slow client")
		}
	}
	return delivered
}

// Subscribers returns the number of clients joined to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Subscribe forwards Redis task channels to local clients. It returns once
// the pattern subscription is confirmed; closing the returned io.Closer stops
// forwarding.
func (h *Hub) Subscribe(ctx context.Context, rdb *redis.Client) (io.Closer, error) {
	pubsub := rdb.PSubscribe(ctx, topicPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to task topics: %w", err)
	}
	go func() {
		for msg := range pubsub.Channel() {
			h.Deliver(msg.Channel, []byte(msg.Payload))
		}
	}()
	return pubsub, nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			h.log.WithError(err).Debug("close websocket")
		}
	}
}
