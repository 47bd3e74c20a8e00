// Package hub is the WebSocket fan-out server generated front-ends subscribe to.
package hub

import (
	"sync"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"webdsl/internal/logging"
)

const (
	defaultQueueSize   = 64
	defaultAuthTimeout = 5 * time.Second
	writeTimeout       = 10 * time.Second
)

// Options configures a Hub.
type Options struct {
	// RequireToken makes the first text frame a WebSocket token checked by Validate.
	RequireToken bool
	AuthTimeout  time.Duration
	Validate     func(token string) bool
	// QueueSize is the number of frames buffered per client before it is dropped.
	QueueSize  int
	Registerer prometheus.Registerer
	Logger     *logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the authenticated clients and broadcasts frames to them.
type Hub struct {
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	connected prometheus.Gauge
	frames    prometheus.Counter
	dropped   prometheus.Counter
	rejected  prometheus.Counter
}

// New returns a Hub with its metrics registered on opts.Registerer.
func New(opts Options) (*Hub, error) {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Validate == nil {
		opts.Validate = func(string) bool { return false }
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	h := &Hub{
		opts:    opts,
		log:     opts.Logger.With("ws_hub"),
		clients: make(map[*client]struct{}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients_connected",
			Help: "Authenticated WebSocket clients currently connected.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_frames_broadcast_total",
			Help: "Frames broadcast to WebSocket clients.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_clients_dropped_total",
			Help: "WebSocket clients dropped because their queue was full.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_auth_rejected_total",
			Help: "WebSocket connections closed for a missing or invalid token.",
		}),
	}
	for _, c := range []prometheus.Collector{h.connected, h.frames, h.dropped, h.rejected} {
		if err := opts.Registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Register mounts the upgrade handler on path.
func (h *Hub) Register(app *fiber.App, path string) {
	app.Use(path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(path, websocket.New(h.serve))
}

func (h *Hub) serve(conn *websocket.Conn) {
	remote := conn.RemoteAddr().String()
	if h.opts.RequireToken && !h.authenticate(conn) {
		h.rejected.Inc()
		h.log.Warn("auth_rejected", logging.Fields{"remote": remote})
		_ = conn.WriteControl(fws.CloseMessage,
			fws.FormatCloseMessage(fws.ClosePolicyViolation, "authentication required"),
			time.Now().Add(time.Second))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.opts.QueueSize)}
	h.add(c)
	h.log.Info("client_connected", logging.Fields{"remote": remote})

	done := make(chan struct{})
	go h.write(c, done)

	// inbound frames only keep the connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	<-done
	h.log.Info("client_disconnected", logging.Fields{"remote": remote})
}

func (h *Hub) authenticate(conn *websocket.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.AuthTimeout))
	mt, msg, err := conn.ReadMessage()
	if err != nil || mt != fws.TextMessage || !h.opts.Validate(string(msg)) {
		return false
	}
	_ = conn.SetReadDeadline(time.Time{})
	return true
}

func (h *Hub) write(c *client, done chan<- struct{}) {
	defer close(done)
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(fws.TextMessage, frame); err != nil {
			// unblock the reader; the queue is closed by remove or by a full Broadcast
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(fws.CloseMessage,
		fws.FormatCloseMessage(fws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.connected.Set(float64(len(h.clients)))
}

// remove unregisters c and closes its queue if it is still registered.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.connected.Set(float64(len(h.clients)))
}

// Broadcast queues frame for every client. A client whose queue is full is dropped.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames.Inc()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.drop(c)
			h.dropped.Inc()
			h.log.Warn("client_dropped", logging.Fields{"reason": "queue_full"})
		}
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
}
