package signaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nikhilsahni7/signal-relay/pkg/util"
)

// ClientConfig holds the transport limits for a WebSocket client.
type ClientConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Outbound messages buffered before the client is considered stalled
	SendBuffer int
}

// DefaultClientConfig mirrors the limits the relay has always used.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	return c
}

// pingPeriod must stay below pongWait so the peer answers before the read
// deadline expires.
func (c ClientConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Client is a Channel backed by a WebSocket connection.
//
// Receive must be called from a single goroutine. All writes happen on the
// client's own write pump, so Send never blocks on the network.
type Client struct {
	id   string
	conn *websocket.Conn
	cfg  ClientConfig
	send chan string

	mutex  sync.Mutex
	closed bool
	done   chan struct{}
}

// NewClient wraps an upgraded connection and starts its write pump.
func NewClient(conn *websocket.Conn, cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		cfg:  cfg,
		send: make(chan string, cfg.SendBuffer),
		done: make(chan struct{}),
	}

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go c.writePump()
	return c
}

// ID returns the client's unique identifier
func (c *Client) ID() string { return c.id }

// Send queues msg for the write pump. A full queue closes the client.
func (c *Client) Send(msg string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		util.Warn("Message buffer full for client %s, closing connection", c.id)
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Receive returns the next text message from the peer. Binary frames are
// skipped.
func (c *Client) Receive() (string, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				return "", fmt.Errorf("read from client %s: %w", c.id, err)
			}
			util.Debug("WebSocket connection closed for client %s: %v", c.id, err)
			return "", fmt.Errorf("%w: %v", ErrChannelClosed, err)
		}
		if msgType != websocket.TextMessage {
			util.Warn("Skipping %v from client %s", errUnsupportedData, c.id)
			continue
		}
		return string(data), nil
	}
}

// Close stops the write pump, which sends a close frame and releases the
// connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Done is closed once the underlying connection has been released.
func (c *Client) Done() <-chan struct{} { return c.done }

// writePump pumps queued messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.mutex.Lock()
		c.closeLocked()
		c.mutex.Unlock()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				util.Debug("Send channel closed for client %s", c.id)
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				util.Warn("Error writing to websocket for client %s: %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				util.Debug("Error sending ping to client %s: %v", c.id, err)
				return
			}
		}
	}
}
