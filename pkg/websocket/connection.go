package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single outbound frame so one stalled client
// cannot wedge a broadcast.
const writeTimeout = 10 * time.Second

// Conn wraps a single accepted WebSocket connection. Writes are
// serialized through sendMu; the read side is owned by the handler's
// read loop and needs no locking.
type Conn struct {
	id     string
	ws     *websocket.Conn
	sendMu sync.Mutex
	closed atomic.Bool
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{id: newConnID(), ws: ws}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Send writes a text frame. Concurrent senders are serialized so
// broadcast frames and request responses never interleave.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Read blocks until the next inbound frame. Binary and text frames are
// both accepted; the payload is handed to the JSON-RPC layer either way.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	_, data, err := c.ws.Read(ctx)
	return data, err
}

// Close closes the connection with a normal closure status. Safe to call
// more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// closeNow tears the connection down without a close handshake.
func (c *Conn) closeNow() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.ws.CloseNow()
	}
}
