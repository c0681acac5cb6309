package tcpmsg

import "log/slog"

// Logger is the interface for structured logging.
// *slog.Logger satisfies it, so applications can pass one directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the process-wide slog logger.
func defaultLogger() Logger {
	return slog.Default()
}
