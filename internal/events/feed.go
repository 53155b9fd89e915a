package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

var feedClients = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "checkout",
	Subsystem: "events",
	Name:      "feed_clients",
	Help:      "Currently connected live-feed WebSocket clients.",
})

func init() {
	prometheus.MustRegister(feedClients)
}

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// MaxFeedClients bounds concurrent live-feed connections.
const MaxFeedClients = 1000

// Subscription filters which event types a client receives. An empty
// EventTypes list means all types.
type Subscription struct {
	EventTypes []Type `json:"eventTypes"`
}

type client struct {
	feed *Feed
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// Feed pushes security events to connected WebSocket clients so a fraud
// dashboard can watch denials and blocks as they happen.
type Feed struct {
	clients    map[*client]bool
	broadcast  chan *Event
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int
}

func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxFeedClients,
	}
}

// Run drives registration and broadcast until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info("event feed started")
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			for c := range f.clients {
				close(c.send) // writePump sends CloseMessage on closed channel
				delete(f.clients, c)
			}
			f.mu.Unlock()
			feedClients.Set(0)
			f.logger.Info("event feed stopped")
			return

		case c := <-f.register:
			f.mu.Lock()
			f.clients[c] = true
			n := len(f.clients)
			f.mu.Unlock()
			feedClients.Set(float64(n))
			f.logger.Info("feed client connected", "total", n)

		case c := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}
			n := len(f.clients)
			f.mu.Unlock()
			feedClients.Set(float64(n))
			f.logger.Info("feed client disconnected", "total", n)

		case ev := <-f.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			f.mu.RLock()
			var slow []*client
			for c := range f.clients {
				if !c.wants(ev.Type) {
					continue
				}
				select {
				case c.send <- payload:
				default:
					slow = append(slow, c)
				}
			}
			f.mu.RUnlock()
			if len(slow) > 0 {
				f.mu.Lock()
				for _, c := range slow {
					if _, ok := f.clients[c]; ok {
						close(c.send)
						delete(f.clients, c)
					}
				}
				f.mu.Unlock()
			}
		}
	}
}

// Broadcast queues an event for delivery. Drops when the feed is saturated.
func (f *Feed) Broadcast(ev *Event) {
	select {
	case f.broadcast <- ev:
	default:
		f.logger.Warn("feed broadcast channel full, dropping event")
	}
}

// ClientCount reports currently connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// HandleWebSocket upgrades the request and attaches the client to the feed.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-f.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	f.mu.RLock()
	n := len(f.clients)
	f.mu.RUnlock()
	if n >= f.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		feed: f,
		conn: conn,
		send: make(chan []byte, 256),
	}

	f.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(t Type) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()
	if len(sub.EventTypes) == 0 {
		return true
	}
	for _, want := range sub.EventTypes {
		if want == t {
			return true
		}
	}
	return false
}

// readPump consumes subscription updates and keeps the read deadline fresh.
func (c *client) readPump() {
	defer func() {
		c.feed.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.feed.logger.Warn("websocket read error", "error", err)
			}
			break
		}
		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.feed.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.feed.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
