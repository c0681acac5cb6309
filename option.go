package tcpmsg

import (
	"time"
	"unicode/utf8"
)

// Default configuration values.
const (
	// DefaultDelimiter terminates every message on the wire.
	DefaultDelimiter = "<!EOL!>"
	// DefaultReceiveBufferSize is the size of a single raw read (1MB).
	DefaultReceiveBufferSize = 1024 * 1024
)

// options holds the configuration shared by Client and Server.
type options struct {
	logger   Logger
	handlers []HandlerFunc

	delimiter         string
	receiveBufferSize int           // bytes requested per raw read
	maxMessageSize    int           // cap on buffered bytes without a delimiter, 0 = unbounded
	writeTimeout      time.Duration // write deadline per send, 0 = none
	idleTimeout       time.Duration // read deadline per raw read, 0 = none
}

// Option is a function that configures a Client or Server.
type Option func(*options)

// checkOptions validates opts and fills in defaults.
func checkOptions(opts *options) error {
	if opts.delimiter == "" {
		opts.delimiter = DefaultDelimiter
	}

	if !utf8.ValidString(opts.delimiter) {
		return ErrInvalidDelimiter
	}

	if opts.receiveBufferSize <= 0 {
		opts.receiveBufferSize = DefaultReceiveBufferSize
	}

	if opts.maxMessageSize < 0 {
		opts.maxMessageSize = 0
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// DelimiterOption sets the string that terminates each message.
// Payloads must never contain it; no escaping is performed.
func DelimiterOption(delimiter string) Option {
	return func(o *options) {
		o.delimiter = delimiter
	}
}

// ReceiveBufferOption sets how many bytes a single raw read may return.
func ReceiveBufferOption(size int) Option {
	return func(o *options) {
		o.receiveBufferSize = size
	}
}

// MaxMessageSizeOption caps the number of bytes buffered while waiting for a
// delimiter. A peer exceeding it is reported with ErrMessageTooLarge and
// disconnected. Zero disables the cap.
func MaxMessageSizeOption(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// WriteTimeoutOption sets the write deadline applied to every send.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// IdleTimeoutOption sets the read deadline applied before every raw read.
// A connection that stays silent longer than this is reported and dropped.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// LoggerOption sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// OnEventOption subscribes handler to every event from construction on.
// It may be given more than once.
func OnEventOption(handler HandlerFunc) Option {
	return func(o *options) {
		if handler != nil {
			o.handlers = append(o.handlers, handler)
		}
	}
}
