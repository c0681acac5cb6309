package tcpmsg

import (
	"net"
	"sync/atomic"
)

// endpoint is the state shared by Client and Server: configuration, the
// running flag that gates every operation, instance-wide byte counters and
// the event dispatcher.
type endpoint struct {
	opts   options
	logger Logger
	events *dispatcher

	running       atomic.Bool
	serial        atomic.Uint64
	totalSent     atomic.Int64
	totalReceived atomic.Int64
}

func newEndpoint(opt ...Option) (*endpoint, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &endpoint{
		opts:   opts,
		logger: opts.logger,
		events: newDispatcher(opts.logger, opts.handlers...),
	}, nil
}

// IsRunning reports whether the instance is connected (Client) or listening
// (Server).
func (e *endpoint) IsRunning() bool { return e.running.Load() }

// Delimiter returns the configured message delimiter.
func (e *endpoint) Delimiter() string { return e.opts.delimiter }

// TotalBytesSent returns the framed bytes written across all connections.
func (e *endpoint) TotalBytesSent() int64 { return e.totalSent.Load() }

// TotalBytesReceived returns the raw bytes read across all connections.
func (e *endpoint) TotalBytesReceived() int64 { return e.totalReceived.Load() }

// Subscribe registers handler for every subsequent event and returns a
// function that unsubscribes it.
func (e *endpoint) Subscribe(handler HandlerFunc) (unsubscribe func()) {
	return e.events.subscribe(handler)
}

func (e *endpoint) wrap(raw net.Conn, remote net.Addr) *Conn {
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return newConn(raw, e.serial.Add(1), remote)
}
