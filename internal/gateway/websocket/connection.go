package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection wraps one upgraded client socket: a buffered send queue
// plus the read/write pumps that drain it and feed inbound frames to
// a MessageHandler.
type Connection struct {
	ID        string
	UserID    string
	SessionID string

	conn *websocket.Conn
	send chan *Message

	authenticated bool
	lastPing      time.Time
	closed        bool

	mu     sync.RWMutex
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection wraps an already-upgraded gorilla/websocket connection.
func NewConnection(id string, conn *websocket.Conn, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		ID:       id,
		conn:     conn,
		send:     make(chan *Message, 256),
		lastPing: time.Now(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Send enqueues msg for the write pump. Returns ErrSendChannelFull
// rather than blocking if the connection is falling behind.
func (c *Connection) Send(msg *Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}
	c.mu.RUnlock()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("send channel full, dropping message",
			zap.String("conn_id", c.ID),
			zap.String("msg_type", string(msg.Type)),
		)
		return ErrSendChannelFull
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	close(c.send)

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SetAuthenticated marks the connection as having presented a valid
// JWT; only authenticated connections receive Hub.Broadcast traffic.
func (c *Connection) SetAuthenticated(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authenticated = true
	c.UserID = userID
	c.SessionID = sessionID
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) UpdatePing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}

func (c *Connection) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

// readPump drains inbound frames until the socket errors or closes.
func (c *Connection) readPump(handler MessageHandler) {
	defer func() {
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.UpdatePing()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			break
		}

		msg, err := FromJSON(data)
		if err != nil {
			c.logger.Warn("failed to parse message", zap.String("conn_id", c.ID), zap.Error(err))
			c.Send(NewErrorMessage("invalid message format"))
			continue
		}

		if handler != nil {
			handler.HandleMessage(c, msg)
		}
	}
}

// writePump drains the send queue and pings the peer on pingPeriod.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := msg.ToJSON()
			if err != nil {
				c.logger.Error("failed to marshal message", zap.String("conn_id", c.ID), zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message", zap.String("conn_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Start launches the read and write pumps.
func (c *Connection) Start(handler MessageHandler) {
	go c.writePump()
	go c.readPump(handler)
}

// Done reports when the connection has closed, so a caller that
// started it can block until then instead of unregistering early.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
