// Package connection wraps one iosock.Socket together with bookkeeping
// both the client pool and the server's per-accepted-connection slot need:
// a generation id for logging, idempotent close, and keep-alive state.
//
// Grounded in pkg/transport's pooledConnection/ConnectionMetadata
// bookkeeping, generalized into a standalone type usable outside the
// client's connection pool.
package connection

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nblabs/httpcore/pkg/iosock"
)

var nextID uint64

// Connection is one live HTTP/1.x connection, client- or server-side.
type Connection struct {
	ID        uint64
	Socket    *iosock.Socket
	Opened    time.Time
	KeepAlive bool

	mu     sync.Mutex
	closed bool
}

// New wraps sock into a Connection with a fresh, process-unique ID.
func New(sock *iosock.Socket) *Connection {
	return &Connection{
		ID:        atomic.AddUint64(&nextID, 1),
		Socket:    sock,
		Opened:    time.Now(),
		KeepAlive: true,
	}
}

// RemoteAddr returns the peer's network address.
func (c *Connection) RemoteAddr() net.Addr { return c.Socket.RemoteAddr() }

// LocalAddr returns this end's network address.
func (c *Connection) LocalAddr() net.Addr { return c.Socket.LocalAddr() }

// Close closes the underlying socket exactly once; subsequent calls are
// no-ops, so both a handler's defer and the server loop's cleanup can call
// it without double-closing.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close(true)
}

// Closed reports whether Close has already run.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
