// Package netconn wraps a raw net.Conn into the duplex message stream the
// swarm core dispatches against: blocking Send, blocking Receive, and an
// idempotent Close. A Connection may be written to by any goroutine (writes
// are serialized internally) but is read by exactly one reader loop.
package netconn

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/p2pswarm/node/internal/wire"
)

// ErrSendFailed wraps the underlying error from a failed Send.
var ErrSendFailed = errors.New("netconn: send failed")

// ErrRecvFailed wraps the underlying error from a failed Receive that isn't
// a clean stream close.
var ErrRecvFailed = errors.New("netconn: receive failed")

// Connection is a single neighbor's duplex byte stream.
type Connection struct {
	conn net.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New wraps an already-connected net.Conn.
func New(conn net.Conn) *Connection {
	return &Connection{conn: conn}
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one message frame atomically. Concurrent callers are
// serialized by an internal lock, so two goroutines sending on the same
// Connection never interleave their bytes.
func (c *Connection) Send(m wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.WriteMessage(c.conn, m); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// Receive blocks until one complete message frame has arrived. A clean
// stream close (the remote closed the connection) is reported as io.EOF;
// every other failure is wrapped in ErrRecvFailed.
func (c *Connection) Receive() (wire.Message, error) {
	m, err := wire.ReadMessage(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return wire.Message{}, io.EOF
		}
		return wire.Message{}, errors.Join(ErrRecvFailed, err)
	}
	return m, nil
}

// SendHandshake writes a handshake frame; it shares Send's write lock so a
// handshake can never interleave with a message frame.
func (c *Connection) SendHandshake(h wire.Handshake) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.WriteHandshake(c.conn, h); err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// ReceiveHandshake reads the peer's handshake frame.
func (c *Connection) ReceiveHandshake() (wire.Handshake, error) {
	h, err := wire.ReadHandshake(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wire.Handshake{}, io.EOF
		}
		return wire.Handshake{}, errors.Join(ErrRecvFailed, err)
	}
	return h, nil
}

// Close shuts down the underlying socket. It is safe to call more than
// once; only the first call's error is returned.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
