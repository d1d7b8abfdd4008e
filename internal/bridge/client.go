package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the overlay-side end of the bridge.
type Client struct {
	url    string
	dialer *websocket.Dialer
	base   time.Duration

	mu       sync.Mutex
	handlers []func(Message)

	connected atomic.Bool

	// wait is swapped in tests to skip real sleeps.
	wait func(ctx context.Context, d time.Duration) bool
}

// NewClient targets the bridge served at addr (host:port).
func NewClient(addr string) *Client {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	return &Client{
		url:    u.String(),
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		base:   baseBackoff,
		wait:   sleepCtx,
	}
}

// OnUpdate registers a handler. Handlers run on the read goroutine, one
// message at a time, in arrival order.
func (c *Client) OnUpdate(fn func(Message)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Run dials, reads, and redials until ctx is cancelled. Consecutive failed
// dials back off from one second, doubling up to thirty.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			delay := calculateBackoff(failures, c.base)
			failures++
			log.Debugw("bridge dial failed", "url", c.url, "error", err, "retry", delay)
			if !c.wait(ctx, delay) {
				return nil
			}
			continue
		}
		failures = 0
		log.Infow("bridge connected", "url", c.url)
		c.serve(ctx, conn)
		log.Infow("bridge connection lost", "url", c.url)
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.connected.Store(true)
	defer c.connected.Store(false)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := decode(raw)
		if err != nil {
			log.Warnw("dropping bridge message", "error", err)
			continue
		}
		c.deliver(msg)
	}
}

func (c *Client) deliver(msg Message) {
	c.mu.Lock()
	handlers := append([]func(Message){}, c.handlers...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

func decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode bridge message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
