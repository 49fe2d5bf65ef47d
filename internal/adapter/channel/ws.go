// Package channel is the client end of the live tracking websocket.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const (
	writeWait = 5 * time.Second
	// server pings every 30s
	readWait = 70 * time.Second

	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 15 * time.Second
)

type Config struct {
	URL        string
	Token      string
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// WSChannel keeps one websocket open, reconnecting with capped backoff until Close.
// Handlers run on the reader goroutine in arrival order.
type WSChannel struct {
	cfg    Config
	dialer *websocket.Dialer
	l      logger.Logger

	mu           sync.RWMutex
	conn         *websocket.Conn
	nextID       uint64
	handlers     map[types.ChannelEvent]map[uint64]func(models.Envelope)
	onConnect    map[uint64]func()
	onDisconnect map[uint64]func(error)

	writeMu   sync.Mutex
	connected atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, l logger.Logger) *WSChannel {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.MinBackoff)
	}

	return &WSChannel{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		l:            l,
		handlers:     make(map[types.ChannelEvent]map[uint64]func(models.Envelope)),
		onConnect:    make(map[uint64]func()),
		onDisconnect: make(map[uint64]func(error)),
	}
}

// Start dials in the background. Register handlers before calling it to see the first connect.
func (c *WSChannel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		c.run(wrap.WithAction(ctx, "tracking_channel"))
	}()
}

func (c *WSChannel) run(ctx context.Context) {
	backoff := c.cfg.MinBackoff

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.l.Debug(ctx, "dial failed", "error", err.Error(), "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}
		backoff = c.cfg.MinBackoff

		c.setConn(conn)
		c.l.Info(ctx, "tracking channel connected", "action", types.ActionChannelConnected)
		c.fireConnect()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = c.read(conn)
		stop()

		c.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.fireDisconnect(err)
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func (c *WSChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *WSChannel) read(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		c.dispatch(env)
	}
}

func (c *WSChannel) dispatch(env models.Envelope) {
	c.mu.RLock()
	hs := make([]func(models.Envelope), 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()

	for _, h := range hs {
		h(env)
	}
}

func (c *WSChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(conn != nil)
}

func (c *WSChannel) fireConnect() {
	c.mu.RLock()
	fns := make([]func(), 0, len(c.onConnect))
	for _, fn := range c.onConnect {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *WSChannel) fireDisconnect(err error) {
	c.mu.RLock()
	fns := make([]func(error), 0, len(c.onDisconnect))
	for _, fn := range c.onDisconnect {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(err)
	}
}

// Emit writes one envelope. It fails fast while the channel is down.
func (c *WSChannel) Emit(ctx context.Context, event types.ChannelEvent, tripID string, payload any) error {
	const op = "WSChannel.Emit"

	env, err := models.NewEnvelope(event, tripID, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%s: %w", op, types.ErrChannelDisconnected)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *WSChannel) On(event types.ChannelEvent, handler func(models.Envelope)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]func(models.Envelope))
	}
	c.handlers[event][id] = handler

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

func (c *WSChannel) OnConnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.onConnect[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.onConnect, id)
		c.mu.Unlock()
	}
}

func (c *WSChannel) OnDisconnect(fn func(error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.onDisconnect[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.onDisconnect, id)
		c.mu.Unlock()
	}
}

func (c *WSChannel) Connected() bool {
	return c.connected.Load()
}

// Close stops reconnecting and closes the socket with a normal close frame.
func (c *WSChannel) Close() error {
	if c.cancel == nil {
		return nil
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
	}

	c.cancel()
	<-c.done
	return nil
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
