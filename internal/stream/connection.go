package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/GamesCrafters/gamesplane/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	sendQueueSize = 1024
	ackQueueSize  = 16
	maxReconnect  = 10
	maxBackoff    = 30 * time.Second
	writeWait     = 10 * time.Second
	ackTimeout    = 10 * time.Second
)

// connection owns one websocket with a single writer goroutine and a
// reader that routes acks. Every data frame goes through write, which holds
// writeMu; close frames use WriteControl, which may run alongside it.
type connection struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	target string
	secret string

	// replay is re-sent first after a reconnect so the server can
	// reattach the stream to its session.
	replay []byte

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh: make(chan []byte, sendQueueSize),
		ackCh:  make(chan streaming.AckMessage, ackQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *connection) dial(ctx context.Context, rawURL, secret string) error {
	c.target = rawURL
	c.secret = secret

	conn, err := c.dialOnce(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop()

	return nil
}

// dialOnce dials with the shared secret as a query parameter.
func (c *connection) dialOnce(ctx context.Context) (*ws.Conn, error) {
	u, err := url.Parse(c.target)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) current() *ws.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// writeLoop drains sendCh until done closes or own is replaced by a
// reconnect, which starts a loop of its own.
func (c *connection) writeLoop(own *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			conn := c.current()
			if conn == nil {
				continue
			}
			if err := c.write(conn, data); err != nil {
				c.logger.Warn("stream write failed", "error", err)
				go c.reconnect()
				return
			}
			if conn != own {
				return
			}
		}
	}
}

func (c *connection) write(conn *ws.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *connection) readLoop() {
	for {
		conn := c.current()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("stream read failed", "error", err)
			go c.reconnect()
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("ignoring stream message", "raw", string(message))
			continue
		}

		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("ack queue full, dropping", "for", ack.For)
		}
	}
}

// reconnect redials with exponential backoff, replays the session start
// and restarts both loops.
func (c *connection) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce(context.Background())
		if err != nil {
			c.logger.Warn("stream redial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		replay := c.replay
		c.mu.Unlock()

		if replay != nil {
			if err := c.write(conn, replay); err != nil {
				c.logger.Warn("stream replay failed", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info("stream reconnected", "attempt", attempt)
		go c.writeLoop(conn)
		go c.readLoop()
		return
	}

	c.logger.Error("stream reconnect gave up", "attempts", maxReconnect)
}

// send queues data for the writer and drops it when the queue is full.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("stream send queue full, dropping message")
		return false
	}
}

// sendAndWait queues data and blocks until the server acks msgType.
func (c *connection) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	if !c.send(data) {
		return fmt.Errorf("send queue full for %q", msgType)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == msgType {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", msgType)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
		}
	}
}

func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}
