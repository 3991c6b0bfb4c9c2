package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
	sendBuffer     = 64
)

// Message is the envelope every frame on the feed uses.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// command is what browsers send to change their subscription.
type command struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

type client struct {
	id   string
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

func newClient(topics []string) *client {
	c := &client{id: uuid.NewString(), send: make(chan []byte, sendBuffer)}
	c.subscribe(topics)
	return c
}

func (c *client) subscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = make(map[string]bool, len(topics))
	for _, t := range topics {
		c.topics[t] = true
	}
}

func (c *client) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// Hub fans topic messages out to connected websocket clients. Clients
// that fall behind by more than their send buffer are disconnected.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan Message
	done       chan struct{}
}

// NewHub builds a hub. An empty origins list accepts any Origin header.
func NewHub(origins []string) *Hub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.FeedClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.FeedClients.Set(float64(n))
			logger.Log.Debug("feed client connected", zap.String("client", c.id), zap.Int("clients", n))

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.FeedClients.Set(float64(n))
		logger.Log.Debug("feed client disconnected", zap.String("client", c.id), zap.Int("clients", n))
	}
}

func (h *Hub) fanOut(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Warn("feed marshal error", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.wants(msg.Topic) {
			continue
		}
		select {
		case c.send <- data:
			metrics.FeedMessages.WithLabelValues(msg.Topic).Inc()
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.FeedDrops.Inc()
		logger.Log.Warn("dropping slow feed client", zap.String("client", c.id))
		h.remove(c)
	}
}

// Broadcast queues data for every client subscribed to topic. It returns
// false when ctx ends or the hub has stopped first.
func (h *Hub) Broadcast(ctx context.Context, topic string, data []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- Message{Topic: topic, Data: json.RawMessage(data)}:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request. ?topics=a,b limits the initial
// subscription; the default is every topic.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	topics := models.Topics
	if q := r.URL.Query().Get("topics"); q != "" {
		topics = strings.Split(q, ",")
	}
	c := newClient(topics)

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(conn, c)
	go h.readPump(conn, c)
}

// readPump handles subscription commands until the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		if cmd.Type == "subscribe" {
			c.subscribe(cmd.Topics)
		}
	}
}

// writePump moves queued frames to the connection and keeps it alive.
func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
