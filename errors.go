package tcpmsg

import (
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// Errors returned by client, server and connection operations.
var (
	// ErrNotRunning is returned when an operation needs a running instance.
	ErrNotRunning = errors.New("instance not running")
	// ErrAlreadyRunning is returned by Start or Connect on a running instance.
	ErrAlreadyRunning = errors.New("instance already running")
	// ErrConnectionClosed is returned when sending on a disconnected connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMessageTooLarge is reported when buffered bytes exceed the configured
	// maximum without a delimiter showing up.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrInvalidDelimiter is returned for a delimiter that is not valid UTF-8.
	ErrInvalidDelimiter = errors.New("invalid delimiter")
	// ErrInvalidAddress is returned when a port is out of range.
	ErrInvalidAddress = errors.New("invalid address")
)

// isBenignReadError reports whether err only means the stream was already
// closed or reset, which is expected while a connection is being torn down.
func isBenignReadError(err error) bool {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}
