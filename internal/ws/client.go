package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chathub/internal/broker"
	"chathub/internal/logger"
	"chathub/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// Client is one upgraded websocket connection. It implements broker.Conn.
type Client struct {
	id     string
	user   string
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (c *Client) ID() string   { return c.id }
func (c *Client) User() string { return c.user }

// Send encodes ev and queues it for the write loop. When the queue is full
// the oldest queued frame is evicted. It returns false once the client is
// closed.
func (c *Client) Send(ev broker.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("ws marshal outbound", "conn", c.id, "type", ev.Type, "err", err)
		return false
	}
	return c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
	}
	select {
	case <-c.send:
		metrics.Dropped.WithLabelValues("evicted").Inc()
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.close(ctx)

	c.conn.SetReadLimit(c.server.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("ws read error", "conn", c.id, "err", err)
			}
			return
		}

		var f broker.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			metrics.Dropped.WithLabelValues("malformed").Inc()
			logger.Debug("ws malformed frame", "conn", c.id, "err", err)
			continue
		}
		if err := c.server.router.Handle(ctx, c, f); err != nil {
			logger.Debug("ws event dropped", "conn", c.id, "type", f.Type, "err", err)
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close runs once per client: the broker forgets the connection, then the
// write loop drains and closes the socket.
func (c *Client) close(ctx context.Context) {
	c.closeOnce.Do(func() {
		c.server.router.Disconnect(ctx, c)
		c.server.forget(c)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}
