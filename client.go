package tcpmsg

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Client holds a single outbound connection.
type Client struct {
	*endpoint

	dialing atomic.Bool

	mu   sync.Mutex // guards the fields below
	host string
	port int
	conn *Conn
	done chan struct{} // closed when the current reader goroutine exits
}

// NewClient creates a Client. It does not connect.
func NewClient(opt ...Option) (*Client, error) {
	e, err := newEndpoint(opt...)
	if err != nil {
		return nil, err
	}
	return &Client{endpoint: e}, nil
}

// Host returns the host of the last Connect call.
func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Port returns the port of the last Connect call.
func (c *Client) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// Conn returns the current connection, or nil before the first Connect.
func (c *Client) Conn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Connect dials host:port. It fails with ErrAlreadyRunning if the client is
// connected or another Connect is in flight. A dial failure is reported both
// as the returned error and as an EventClientError with a nil Conn, and so
// is a port outside 1-65535. An empty host dials the local system.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if c.running.Load() || !c.dialing.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.dialing.Store(false)

	if c.running.Load() {
		return ErrAlreadyRunning
	}

	c.mu.Lock()
	c.host, c.port = host, port
	c.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var (
		raw net.Conn
		err error
	)
	if port <= 0 || port > 65535 {
		err = errors.Wrapf(ErrInvalidAddress, "dial %s", addr)
	} else {
		var dialer net.Dialer
		if raw, err = dialer.DialContext(ctx, "tcp", addr); err != nil {
			err = errors.Wrapf(err, "dial %s", addr)
		}
	}
	if err != nil {
		c.logger.Info("connect failed", "addr", addr, "error", err)
		c.events.submit(Event{Type: EventClientError, Err: err})
		return err
	}

	conn := c.wrap(raw, nil)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	c.running.Store(true)
	c.logger.Info("connected", "addr", addr, "conn", conn.id)
	c.events.submit(Event{Type: EventClientConnected, Conn: conn})

	go func() {
		defer close(done)
		c.readLoop(conn, c.disconnect)
	}()

	return nil
}

// Disconnect closes the connection and waits for its reader goroutine to
// finish. EventClientDisconnected fires once even if the peer hangs up at the
// same moment.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn == nil || !c.running.Load() {
		return ErrNotRunning
	}

	c.disconnect(conn)
	<-done
	return nil
}

// Send frames text and writes it on the current connection.
func (c *Client) Send(text string) error {
	return c.send(c.Conn(), text)
}

// Close disconnects if needed and stops event delivery once every pending
// event has been handled. The client cannot be used afterwards.
func (c *Client) Close() error {
	if c.running.Load() {
		_ = c.Disconnect()
	}
	c.events.close()
	return nil
}

func (c *Client) disconnect(conn *Conn) {
	if !conn.release() {
		return
	}

	c.logger.Info("disconnected", "conn", conn.id)
	c.events.submit(Event{Type: EventClientDisconnected, Conn: conn})
	c.running.Store(false)
}
