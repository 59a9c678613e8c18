// Package telemetry streams trial events to websocket consumers
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/event"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Consumers only send control frames
	maxMessageSize = 512
	// Per-client outbound buffer; a client that falls this far behind is dropped
	sendBuffer = 256

	// EventsPath is where the hub is mounted by Serve
	EventsPath = "/events"
)

var (
	ErrNoConsumers = goerr.New("no telemetry consumer connected")

	json = jsoniter.ConfigCompatibleWithStandardLibrary

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Local lab tool: consumers connect from any origin
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

// client is a middleman between the websocket connection and the hub
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket consumers
// Push is lock-free and never blocks; a single drain goroutine encodes and broadcasts
type Hub struct {
	log           *zap.Logger
	queue         *event.EventQueue
	drainInterval time.Duration

	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	consumers  atomic.Int32
	sent       atomic.Uint64
	done       chan struct{}
}

func NewHub(logger *zap.Logger, drainInterval time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if drainInterval <= 0 {
		drainInterval = 5 * time.Millisecond
	}
	return &Hub{
		log:           logger.Named("telemetry"),
		queue:         event.NewEventQueue(),
		drainInterval: drainInterval,
		clients:       make(map[*client]bool),
		register:      make(chan *client),
		unregister:    make(chan *client),
		done:          make(chan struct{}),
	}
}

// Push implements event.Sink
func (h *Hub) Push(e event.Event) {
	h.queue.Push(e)
}

// HasConsumers reports whether at least one websocket client is connected
func (h *Hub) HasConsumers() bool {
	return h.consumers.Load() > 0
}

// Sent is the number of messages handed to client buffers
func (h *Hub) Sent() uint64 { return h.sent.Load() }

// Dropped is the number of events overwritten before the drain reached them
func (h *Hub) Dropped() uint64 { return h.queue.Dropped() }

// WaitForConsumers blocks until a consumer connects, ctx ends or timeout elapses
func (h *Hub) WaitForConsumers(ctx context.Context, timeout time.Duration) error {
	if h.HasConsumers() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return goerr.Wrap(ErrNoConsumers, "wait for consumers", goerr.V("timeout", timeout.String()))
			}
			return ctx.Err()
		case <-poll.C:
			if h.HasConsumers() {
				return nil
			}
		}
	}
}

// Run owns the client set and drains the queue until ctx ends; pending events are flushed on exit
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Telemetry hub started.")
	defer h.log.Info("Telemetry hub stopped.")
	defer close(h.done)

	ticker := time.NewTicker(h.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.drain()
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.consumers.Add(1)
			h.mu.Unlock()
			h.log.Info("Telemetry consumer connected.", zap.String("client_id", c.id))
		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				h.drop(c)
				h.log.Info("Telemetry consumer disconnected.", zap.String("client_id", c.id))
			}
			h.mu.Unlock()
		case <-ticker.C:
			h.drain()
		}
	}
}

// drop removes c and closes its send channel; caller holds mu
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.consumers.Add(-1)
}

func (h *Hub) drain() {
	events := h.queue.Consume()
	if len(events) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	for _, ev := range events {
		msg, err := json.Marshal(ev)
		if err != nil {
			h.log.Error("Failed to encode event.", zap.Error(err), zap.Stringer("kind", ev.Kind))
			continue
		}
		for c := range h.clients {
			select {
			case c.send <- msg:
				h.sent.Add(1)
			default:
				h.log.Warn("Dropping slow telemetry consumer.", zap.String("client_id", c.id))
				h.drop(c)
			}
		}
	}
}

// ServeHTTP upgrades the request and attaches a new consumer
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade websocket.", zap.Error(err))
		return
	}
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Serve listens on addr and serves the hub at EventsPath until ctx ends
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return goerr.Wrap(err, "listen", goerr.V("addr", addr))
	}
	return h.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener
func (h *Hub) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(EventsPath, h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	h.log.Info("Telemetry listening.", zap.String("addr", ln.Addr().String()), zap.String("path", EventsPath))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return goerr.Wrap(err, "serve telemetry")
	}
	return nil
}

// readPump discards inbound frames and detects disconnects
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("Telemetry consumer read error.", zap.Error(err), zap.String("client_id", c.id))
			}
			return
		}
	}
}

// writePump sends one event per text frame and keeps the connection alive with pings
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
