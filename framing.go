package tcpmsg

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
)

// framer accumulates raw bytes and cuts them into delimiter-terminated
// messages. It works on bytes so a rune split across two reads survives.
type framer struct {
	delim []byte
	max   int

	buf     []byte
	off     int // start of the unconsumed bytes in buf
	scanned int // bytes past off already known to hold no delimiter start
}

func newFramer(delimiter string, max int) *framer {
	return &framer{delim: []byte(delimiter), max: max}
}

// feed appends a raw chunk, compacting consumed bytes first.
func (f *framer) feed(chunk []byte) {
	if f.off > 0 {
		n := copy(f.buf, f.buf[f.off:])
		f.buf = f.buf[:n]
		f.off = 0
	}
	f.buf = append(f.buf, chunk...)
}

// next extracts the message before the first delimiter, if there is one.
// A failed search is not repeated over the same bytes on the next call.
func (f *framer) next() (string, bool) {
	from := f.off + f.scanned
	i := bytes.Index(f.buf[from:], f.delim)
	if i < 0 {
		// The last len(delim)-1 bytes may start a delimiter that the next
		// chunk completes.
		f.scanned = max(0, f.buffered()-(len(f.delim)-1))
		return "", false
	}

	end := from + i
	msg := string(f.buf[f.off:end])
	f.off = end + len(f.delim)
	f.scanned = 0
	return msg, true
}

// buffered returns the number of bytes waiting for a delimiter.
func (f *framer) buffered() int {
	return len(f.buf) - f.off
}

// overflow reports ErrMessageTooLarge when the pending bytes exceed max.
func (f *framer) overflow() error {
	if f.max > 0 && f.buffered() > f.max {
		return ErrMessageTooLarge
	}
	return nil
}

// readLoop runs the read engine for c until the peer closes, the socket is
// released or an error occurs, then hands c to disconnect exactly once.
// Every complete message of a raw read is submitted before the next read.
func (e *endpoint) readLoop(c *Conn, disconnect func(*Conn)) {
	defer disconnect(c)

	raw := c.socket()
	if raw == nil || !e.running.Load() {
		return
	}

	f := newFramer(e.opts.delimiter, e.opts.maxMessageSize)
	chunk := make([]byte, e.opts.receiveBufferSize)
	delimLen := len(e.opts.delimiter)

	for {
		if e.opts.idleTimeout > 0 {
			_ = raw.SetReadDeadline(time.Now().Add(e.opts.idleTimeout))
		}

		n, err := raw.Read(chunk)
		if n > 0 {
			e.totalReceived.Add(int64(n))
			f.feed(chunk[:n])

			for {
				msg, ok := f.next()
				if !ok {
					break
				}
				size := len(msg) + delimLen
				c.bytesReceived.Add(int64(size))
				e.events.submit(Event{Type: EventMessageReceived, Conn: c, Text: msg, Bytes: size})
			}

			if ferr := f.overflow(); ferr != nil {
				e.logger.Warn("message too large", "conn", c.id, "buffered", f.buffered())
				e.events.submit(Event{Type: EventClientError, Conn: c, Err: ferr})
				return
			}
		}

		if err != nil {
			if isBenignReadError(err) || c.IsClosed() {
				e.logger.Debug("read loop finished", "conn", c.id, "reason", err)
				return
			}

			err = errors.Wrap(err, "read")
			e.logger.Debug("read error", "conn", c.id, "error", err)
			e.events.submit(Event{Type: EventClientError, Conn: c, Err: err})
			return
		}
	}
}
