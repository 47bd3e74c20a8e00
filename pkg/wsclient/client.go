// Package wsclient is a reconnecting WebSocket client for the runtime's topic stream.
//
// A Client dials, sends its auth token as the first frame, and dispatches every
// {"<topic>": payload} frame to the listeners subscribed to that topic. When the socket
// closes it waits RetryDelay and dials again. It gives up after MaxRetries closes counted
// since Run started or since the last session opened.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"

	"webdsl/internal/logging"
)

// Defaults applied by New.
const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = 5 * time.Second
)

// Notification texts.
const (
	MsgConnected    = "WebSocket is connected!"
	MsgReconnecting = "Reconnecting to WebSocket..."
	MsgGaveUp       = "Error connecting to WebSocket!"
)

var (
	// ErrNoToken is returned by Run when a token is required and none is available.
	ErrNoToken = errors.New("wsclient: no auth token available")
	// ErrMaxRetries is returned by Run once the retry budget is spent.
	ErrMaxRetries = errors.New("wsclient: max retries reached")
)

// State of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
	Closed
	GaveUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case GaveUp:
		return "gave-up"
	}
	return "unknown"
}

// TokenSource returns the token sent as the first frame. It is called before every
// dial so a refreshed session token is picked up on reconnect. An error before the
// first session opened stops Run with ErrNoToken.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

// Listener receives the payload published under a topic.
type Listener func(payload json.RawMessage)

// Options configure a Client.
type Options struct {
	URL          string
	Header       http.Header
	Token        TokenSource
	RequireToken bool

	// MaxRetries bounds the closes counted since Run started or since the last
	// session opened. A fresh Run therefore dials at most MaxRetries times against a
	// dead server. Zero means DefaultMaxRetries, a negative value allows a single dial.
	MaxRetries int
	RetryDelay time.Duration

	Dialer   *websocket.Dialer
	Notifier Notifier
	Logger   *logging.Logger
}

type listener struct {
	fn Listener
}

// Client owns a single socket at a time. Subscribe, State and Close are safe to call
// from any goroutine; Run must only be running once.
type Client struct {
	opts  Options
	log   *logging.Logger
	state atomic.Int32

	mu        sync.Mutex
	listeners map[string][]*listener

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a Client in the Disconnected state.
func New(opts Options) *Client {
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	log := opts.Logger.With("wsclient")
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Log: log}
	}
	return &Client{
		opts:      opts,
		log:       log,
		listeners: make(map[string][]*listener),
		stop:      make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Subscribe registers fn for topic. Listeners of a topic run in registration order on
// the goroutine executing Run. The returned func removes the listener.
func (c *Client) Subscribe(topic string, fn Listener) func() {
	l := &listener{fn: fn}
	c.mu.Lock()
	c.listeners[topic] = append(c.listeners[topic], l)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ls := c.listeners[topic]
			for i, cur := range ls {
				if cur == l {
					c.listeners[topic] = append(ls[:i:i], ls[i+1:]...)
					break
				}
			}
			if len(c.listeners[topic]) == 0 {
				delete(c.listeners, topic)
			}
		})
	}
}

// Close stops Run and closes the live socket.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Run connects and keeps reconnecting until ctx is cancelled, Close is called, or the
// retry budget is spent. It returns ctx.Err() on cancellation, nil after Close,
// ErrNoToken or ErrMaxRetries.
//
// The budget is checked before every dial, so a failure streak makes at most
// MaxRetries dials and the give-up notice follows the last RetryDelay. Once a session
// has opened, a failing token source falls back to the last token that worked.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		retries   int
		everOpen  bool
		lastToken string
	)
	for {
		if retries >= c.opts.MaxRetries {
			c.setState(GaveUp)
			c.log.Warn("max_retries_reached", logging.Fields{"max_retries": c.opts.MaxRetries})
			c.opts.Notifier.Error(MsgGaveUp)
			return ErrMaxRetries
		}

		token, err := c.token(ctx)
		if err != nil {
			if done, cerr := c.finished(ctx); done {
				c.setState(Disconnected)
				return cerr
			}
			if !everOpen {
				c.setState(Disconnected)
				c.log.Error("token_unavailable", err, nil)
				return ErrNoToken
			}
			c.log.Warn("token_refresh_failed", logging.Fields{"error": err.Error()})
			token = lastToken
		}

		c.setState(Connecting)
		c.log.Info("connect_attempt", logging.Fields{"url": c.opts.URL, "attempt": retries + 1})
		opened, err := c.session(ctx, token)
		if opened {
			retries = 0
			everOpen = true
			lastToken = token
		}
		c.setState(Closed)
		if done, cerr := c.finished(ctx); done {
			return cerr
		}
		c.log.Warn("socket_closed", logging.Fields{"reason": errString(err)})

		retries++
		c.opts.Notifier.Warn(MsgReconnecting)

		t := time.NewTimer(c.opts.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			_, cerr := c.finished(ctx)
			return cerr
		case <-t.C:
		}
	}
}

// finished reports whether Run should stop and what it returns: nil after Close,
// ctx.Err() otherwise.
func (c *Client) finished(ctx context.Context) (bool, error) {
	if ctx.Err() == nil {
		return false, nil
	}
	select {
	case <-c.stop:
		return true, nil
	default:
	}
	return true, ctx.Err()
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.opts.Token == nil {
		if c.opts.RequireToken {
			return "", ErrNoToken
		}
		return "", nil
	}
	tok, err := c.opts.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" && c.opts.RequireToken {
		return "", ErrNoToken
	}
	return tok, nil
}

// session runs one socket from dial to close. opened reports whether the socket
// reached the Open state.
func (c *Client) session(ctx context.Context, token string) (opened bool, err error) {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	if token != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(token)); err != nil {
			return false, err
		}
	}
	c.setState(Open)
	c.log.Info("connected", logging.Fields{"url": c.opts.URL})
	c.opts.Notifier.Success(MsgConnected)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || frame == nil {
		c.log.Warn("frame_invalid", logging.Fields{"size": len(data)})
		return
	}
	topics := make([]string, 0, len(frame))
	for topic := range frame {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		c.mu.Lock()
		ls := append([]*listener(nil), c.listeners[topic]...)
		c.mu.Unlock()
		for _, l := range ls {
			l.fn(frame[topic])
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
