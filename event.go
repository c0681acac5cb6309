package tcpmsg

import "time"

// EventType identifies what happened.
type EventType int

const (
	// EventServerStarted fires once the listener is accepting.
	EventServerStarted EventType = iota + 1
	// EventServerStopped fires after every connection of a stopping server
	// has been disconnected.
	EventServerStopped
	// EventServerError carries a bind or accept failure.
	EventServerError
	// EventClientConnected fires when a connection is established.
	EventClientConnected
	// EventClientDisconnected fires exactly once per connection.
	EventClientDisconnected
	// EventClientError carries a connect, read or write failure.
	// Conn is nil when the failure happened before a connection existed.
	EventClientError
	// EventMessageReceived carries one complete message, delimiter removed.
	EventMessageReceived
	// EventMessageSent fires after a framed message has been transmitted.
	EventMessageSent
)

var eventTypeNames = map[EventType]string{
	EventServerStarted:      "server-started",
	EventServerStopped:      "server-stopped",
	EventServerError:        "server-error",
	EventClientConnected:    "client-connected",
	EventClientDisconnected: "client-disconnected",
	EventClientError:        "client-error",
	EventMessageReceived:    "message-received",
	EventMessageSent:        "message-sent",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is a single notification delivered to subscribers.
type Event struct {
	Type EventType
	// Conn is the connection the event belongs to, nil for server events.
	Conn *Conn
	// Text is the received message for EventMessageReceived.
	Text string
	// Bytes is the wire size of the message, delimiter included.
	Bytes int
	// Err is the cause for the error events.
	Err error
	// At is the time the event was submitted.
	At time.Time
}

// HandlerFunc receives events. Handlers run one at a time on the dispatch
// goroutine, so they must not call Close on the instance that feeds them.
type HandlerFunc func(Event)
