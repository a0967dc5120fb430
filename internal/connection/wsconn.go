package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WSConn is a server-side WebSocket connection with its own outbound queue.
type WSConn struct {
	cfg    WSConfig
	logger *slog.Logger

	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	failOnce  sync.Once
	onFailure func(error)
}

// NewWSConn wraps an upgraded WebSocket connection.
func NewWSConn(conn *websocket.Conn, cfg WSConfig, logger *slog.Logger) *WSConn {
	if logger == nil {
		logger = slog.Default()
	}

	c := &WSConn{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(cfg.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	return c
}

// Start launches the write pump. onFailure is called at most once when a write or
// ping fails; it is not called for failures that follow Close.
func (c *WSConn) Start(onFailure func(error)) {
	c.onFailure = onFailure
	go c.writePump()
}

// Send queues data without blocking.
func (c *WSConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// ReadMessage blocks for the next text or binary frame from the client.
func (c *WSConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close marks the connection closed and returns immediately. The close frame
// and socket teardown run on their own goroutine, so a peer that stopped
// reading cannot stall the caller.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.teardown()
	})
	return nil
}

// teardown waits at most closeGracePeriod for the write lock, which a blocked
// write pump may hold, then closes the socket. Closing also unblocks any read loop.
func (c *WSConn) teardown() {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("websocket close failed", "error", err)
	}
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *WSConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// fail reports a transport failure unless the connection was already closed.
func (c *WSConn) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	c.failOnce.Do(func() {
		c.logger.Debug("websocket write failed", "error", err)
		if c.onFailure != nil {
			c.onFailure(err)
		}
	})
}
