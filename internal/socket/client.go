// ABOUTME: One connected socket client: identity, serialized writes, liveness
// ABOUTME: WebSocket writes are mutex-guarded; the protocol forbids concurrent writes

package socket

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single outbound frame.
const writeTimeout = 10 * time.Second

type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// send writes one JSON frame. Safe for concurrent use.
func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.CloseError{Code: websocket.StatusGoingAway}
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

// ping checks liveness, waiting for the peer's pong.
func (c *client) ping(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.conn.Ping(ctx)
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close(code, reason)
}
