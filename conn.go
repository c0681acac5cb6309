// Package tcpmsg provides a symmetric TCP messaging layer: a Client that
// connects to one remote endpoint and a Server that accepts many, both
// exchanging delimiter-framed UTF-8 text messages over persistent connections.
//
// All connect, disconnect, message and error notifications flow through a
// single dispatcher that delivers them one at a time in submission order.
// The layer performs no escaping of the delimiter, no compression, no
// encryption and no reconnection.
package tcpmsg

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn is one live socket and its counters.
// Once the socket has been released the Conn is terminal: sends fail and its
// reader goroutine exits.
type Conn struct {
	id          string
	serial      uint64
	connectedAt time.Time
	remote      net.Addr

	mu  sync.Mutex
	raw net.Conn

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

// ConnInfo is a point-in-time view of a Conn.
type ConnInfo struct {
	ID            string    `json:"id"`
	Serial        uint64    `json:"serial"`
	ConnectedAt   time.Time `json:"connected_at"`
	RemoteAddr    string    `json:"remote_addr,omitempty"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
}

// newConn wraps raw. remote is only captured on the accepting side.
func newConn(raw net.Conn, serial uint64, remote net.Addr) *Conn {
	return &Conn{
		id:          uuid.NewString(),
		serial:      serial,
		connectedAt: time.Now(),
		remote:      remote,
		raw:         raw,
	}
}

// ID returns the unique identifier generated when the connection was made.
func (c *Conn) ID() string { return c.id }

// Serial returns the per-instance sequence number of the connection.
func (c *Conn) Serial() uint64 { return c.serial }

// ConnectedAt returns when the connection was established.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// RemoteAddr returns the peer address for accepted connections, nil otherwise.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// BytesSent returns the number of framed bytes written on this connection.
func (c *Conn) BytesSent() int64 { return c.bytesSent.Load() }

// BytesReceived returns the number of bytes of complete messages read on this
// connection, delimiters included.
func (c *Conn) BytesReceived() int64 { return c.bytesReceived.Load() }

// IsClosed reports whether the socket has been released.
func (c *Conn) IsClosed() bool {
	return c.socket() == nil
}

// Info returns a snapshot of the connection's identity and counters.
func (c *Conn) Info() ConnInfo {
	info := ConnInfo{
		ID:            c.id,
		Serial:        c.serial,
		ConnectedAt:   c.connectedAt,
		BytesSent:     c.BytesSent(),
		BytesReceived: c.BytesReceived(),
	}
	if c.remote != nil {
		info.RemoteAddr = c.remote.String()
	}
	return info
}

func (c *Conn) socket() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw
}

// release clears and closes the socket. Only the first call does anything
// and reports true, however many goroutines race to tear the connection down.
func (c *Conn) release() bool {
	c.mu.Lock()
	raw := c.raw
	c.raw = nil
	c.mu.Unlock()

	if raw == nil {
		return false
	}
	_ = raw.Close()
	return true
}
