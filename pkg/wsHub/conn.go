package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is one websocket connection of an authenticated user.
// Writes go through a buffered channel drained by a single writer goroutine.
type Conn struct {
	conn    *websocket.Conn
	userID  uuid.UUID
	send    chan []byte
	doneCtx context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func NewConn(ctx context.Context, userID uuid.UUID, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	return &Conn{
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBuffer),
		doneCtx: ctx,
		cancel:  cancel,
	}
}

func (c *Conn) UserID() uuid.UUID {
	return c.userID
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.doneCtx.Done()
}

// Send marshals msg and queues it. It never blocks.
func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	select {
	case <-c.doneCtx.Done():
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.doneCtx.Done():
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Run starts the writer and blocks reading messages until the connection fails or is closed.
func (c *Conn) Run(handler func(data []byte) error) error {
	go c.writer()
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// каждый pong от клиента, обновляем таймер
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.doneCtx.Done():
				return nil
			default:
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if err := handler(data); err != nil {
			return fmt.Errorf("handler failed: %w", err)
		}
	}
}

func (c *Conn) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.doneCtx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		c.cancel()
		// writer sends the close frame, then the socket goes away
		time.AfterFunc(writeWait, func() { c.conn.Close() })
	})
	return nil
}
