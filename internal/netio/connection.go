// Package netio wraps a single TCP connection to a node. Idiomatic Go
// realizes a non-blocking, callback-driven socket contract with a
// plain blocking net.Conn plus deadlines, driven from the command's
// own goroutine -- there is no IOCP-style completion thread to
// integrate with. The connection stays unaware of commands; callers
// set deadlines and buffer ranges before each send/recv.
//
// Grounded on rpc/transport/tcp/client.go's dialer and
// rpc/transport/base/client.go's clientConnection (idle tracking,
// close-on-error discipline).
package netio

import (
	"net"
	"time"

	"github.com/dkv-io/async-client/types"
)

// Connection wraps one node TCP connection.
type Connection struct {
	conn     net.Conn
	node     string
	lastUsed time.Time
	closed   bool
}

// Dial opens a new connection to node's endpoint. Since Go's net.Dial
// blocks the calling goroutine rather than completing asynchronously
// on an I/O thread, callers should invoke Dial from a command's own
// goroutine, not from a shared dispatch loop.
func Dial(node, endpoint string, timeout time.Duration) (*Connection, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", endpoint)
	if err != nil {
		return nil, types.ClassifyIOError(err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &Connection{conn: c, node: node, lastUsed: time.Now()}, nil
}

// Node returns the node id this connection belongs to.
func (c *Connection) Node() string { return c.node }

// Send writes buf to the connection in full, honoring deadline. A short
// write is handled internally by looping until all bytes are written
// or an error occurs.
func (c *Connection) Send(buf []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return types.ClassifyIOError(err)
	}
	total := 0
	for total < len(buf) {
		n, err := c.conn.Write(buf[total:])
		if err != nil {
			return types.ClassifyIOError(err)
		}
		total += n
	}
	c.lastUsed = time.Now()
	return nil
}

// Recv reads exactly len(buf) bytes, honoring deadline. A read that
// returns 0 bytes with no error is treated as the peer having closed
// the connection.
func (c *Connection) Recv(buf []byte, deadline time.Time) error {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return types.ClassifyIOError(err)
	}
	total := 0
	for total < len(buf) {
		n, err := c.conn.Read(buf[total:])
		if n == 0 && err == nil {
			return types.Wrap(types.KindConnection, nil, "connection closed by peer (zero-byte read)")
		}
		if err != nil {
			return types.ClassifyIOError(err)
		}
		total += n
	}
	c.lastUsed = time.Now()
	return nil
}

// UpdateLastUsed refreshes the idle-tracking timestamp; called by the
// pool when a healthy connection is returned.
func (c *Connection) UpdateLastUsed() { c.lastUsed = time.Now() }

// IdleSince reports how long the connection has sat unused.
func (c *Connection) IdleSince() time.Duration { return time.Since(c.lastUsed) }

// Close closes the underlying socket. Idempotent.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool { return c.closed }
