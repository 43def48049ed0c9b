// Package session tracks live canvas connections. A Client owns one WebSocket
// and its write pump; the Hub is the registry every broadcast goes through.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pixelcanvas/internal/domain"
)

// Conn is the part of *websocket.Conn a Client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Config bounds the I/O of a client.
type Config struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     256,
		MaxMessageSize: 4096,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// ErrClosed is returned when writing to a closed client.
var ErrClosed = errors.New("session closed")

// Client is one live connection. User is the connection's private copy of its
// identity, or nil for an anonymous viewer; only the read loop mutates it.
type Client struct {
	ID   uuid.UUID
	User *domain.User

	conn Conn
	cfg  Config
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn. The client is not registered anywhere yet.
func NewClient(conn Conn, user *domain.User, cfg Config) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	return &Client{
		ID:   uuid.New(),
		User: user,
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
	}
}

// Name returns the display name, or "" for anonymous clients.
func (c *Client) Name() string {
	if c.User == nil {
		return ""
	}
	return c.User.Username
}

// Anonymous reports whether the client has no identity.
func (c *Client) Anonymous() bool {
	return c.User == nil
}

// Enqueue hands msg to the write pump without blocking. It reports false when
// the client is closed or its buffer is full; both mean the peer is gone.
func (c *Client) Enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WriteDirect writes one frame before the write pump starts. Used for the
// initial canvas message only.
func (c *Client) WriteDirect(msg []byte) error {
	if c.Closed() {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Reject sends a close frame with reason and closes the connection. Used when
// the handshake fails before the client is registered.
func (c *Client) Reject(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
	_ = c.conn.Close()
}

// WritePump pumps messages from the send channel to the connection and sends
// heartbeat pings. It closes the connection when it returns.
func (c *Client) WritePump() {
	var tick <-chan time.Time
	if c.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(c.cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads frames in arrival order and hands every text frame to handle.
// Pings are answered with pongs on the transport. It returns the error that
// ended the connection.
func (c *Client) ReadPump(handle func(frame []byte)) error {
	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	extend := func() {
		if c.cfg.PongWait > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		}
	}
	extend()

	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	c.conn.SetPingHandler(func(data string) error {
		extend()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt == websocket.TextMessage {
			handle(msg)
		}
	}
}
