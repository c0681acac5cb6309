// Package metrics exports tcpmsg events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Zereker/tcpmsg"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "tcpmsg").
	Namespace string

	// Subsystem is the metrics subsystem, e.g. "server" or "client".
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "tcpmsg",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector turns the event stream of a Client or Server into metrics.
// Subscribe its Handle method:
//
//	c := metrics.New(metrics.WithSubsystem("server"))
//	srv.Subscribe(c.Handle)
type Collector struct {
	up               prometheus.Gauge
	connections      prometheus.Counter
	activeConns      prometheus.Gauge
	messagesReceived prometheus.Counter
	messagesSent     prometheus.Counter
	bytesReceived    prometheus.Counter
	bytesSent        prometheus.Counter
	errors           *prometheus.CounterVec
}

// New creates a Collector and registers its metrics.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		up:               gauge("up", "1 while the server is listening or the client is connected"),
		connections:      counter("connections_total", "Total number of connections established"),
		activeConns:      gauge("active_connections", "Number of live connections"),
		messagesReceived: counter("messages_received_total", "Total number of complete messages received"),
		messagesSent:     counter("messages_sent_total", "Total number of messages sent"),
		bytesReceived:    counter("message_bytes_received_total", "Bytes of received messages, delimiters included"),
		bytesSent:        counter("message_bytes_sent_total", "Bytes of sent messages, delimiters included"),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of reported errors by source",
			ConstLabels: config.ConstLabels,
		}, []string{"source"}),
	}
}

// Handle records ev. It is a tcpmsg.HandlerFunc.
func (c *Collector) Handle(ev tcpmsg.Event) {
	switch ev.Type {
	case tcpmsg.EventServerStarted:
		c.up.Set(1)
	case tcpmsg.EventServerStopped:
		c.up.Set(0)
	case tcpmsg.EventServerError:
		c.errors.WithLabelValues("server").Inc()
	case tcpmsg.EventClientConnected:
		c.connections.Inc()
		c.activeConns.Inc()
		if ev.Conn != nil && ev.Conn.RemoteAddr() == nil {
			// outbound connection: a client is up while connected
			c.up.Set(1)
		}
	case tcpmsg.EventClientDisconnected:
		c.activeConns.Dec()
		if ev.Conn != nil && ev.Conn.RemoteAddr() == nil {
			c.up.Set(0)
		}
	case tcpmsg.EventClientError:
		c.errors.WithLabelValues("connection").Inc()
	case tcpmsg.EventMessageReceived:
		c.messagesReceived.Inc()
		c.bytesReceived.Add(float64(ev.Bytes))
	case tcpmsg.EventMessageSent:
		c.messagesSent.Inc()
		c.bytesSent.Add(float64(ev.Bytes))
	}
}
