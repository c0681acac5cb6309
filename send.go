package tcpmsg

import (
	"time"

	"github.com/pkg/errors"
)

// SendResult is the outcome of one send inside a broadcast.
type SendResult struct {
	ConnID string
	Err    error
}

// send frames text with the delimiter and writes it to c.
//
// Sends on the same connection are not serialized against each other;
// callers issuing overlapping sends on one Conn must serialize them.
func (e *endpoint) send(c *Conn, text string) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	if c == nil {
		return ErrConnectionClosed
	}

	raw := c.socket()
	if raw == nil {
		return ErrConnectionClosed
	}

	data := []byte(text + e.opts.delimiter)
	if e.opts.writeTimeout > 0 {
		_ = raw.SetWriteDeadline(time.Now().Add(e.opts.writeTimeout))
	}

	n, err := raw.Write(data)
	if err != nil {
		// torn down underneath us: same as sending after disconnect
		if c.IsClosed() {
			return ErrConnectionClosed
		}

		err = errors.Wrap(err, "write")
		e.logger.Debug("write error", "conn", c.id, "error", err)
		e.events.submit(Event{Type: EventClientError, Conn: c, Err: err})
		return err
	}

	c.bytesSent.Add(int64(n))
	e.totalSent.Add(int64(n))
	e.events.submit(Event{Type: EventMessageSent, Conn: c, Bytes: n})
	return nil
}
