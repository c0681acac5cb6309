package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zereker/tcpmsg"
)

// commonFlags are the framing and logging settings both subcommands accept.
type commonFlags struct {
	delimiter      string
	chunkSize      int
	maxMessageSize int
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	verbose        bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.delimiter, "delimiter", "d", tcpmsg.DefaultDelimiter, "Message delimiter")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", tcpmsg.DefaultReceiveBufferSize, "Bytes per raw read")
	cmd.Flags().IntVar(&f.maxMessageSize, "max-message-size", 0, "Maximum buffered bytes without a delimiter (0 = unbounded)")
	cmd.Flags().DurationVar(&f.writeTimeout, "write-timeout", 0, "Write deadline per message (0 = none)")
	cmd.Flags().DurationVar(&f.idleTimeout, "idle-timeout", 0, "Drop connections silent for this long (0 = never)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
}

// options maps the flags onto library options.
func (f *commonFlags) options() []tcpmsg.Option {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return []tcpmsg.Option{
		tcpmsg.DelimiterOption(f.delimiter),
		tcpmsg.ReceiveBufferOption(f.chunkSize),
		tcpmsg.MaxMessageSizeOption(f.maxMessageSize),
		tcpmsg.WriteTimeoutOption(f.writeTimeout),
		tcpmsg.IdleTimeoutOption(f.idleTimeout),
		tcpmsg.LoggerOption(logger),
	}
}
