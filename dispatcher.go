package tcpmsg

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// dispatcher delivers events to subscribers from a single goroutine in the
// order they were submitted. The pending queue is unbounded so producers
// (reader goroutines, the accept loop, senders) never wait on consumers.
type dispatcher struct {
	logger Logger

	mu       sync.Mutex
	pending  *queue.Queue
	subs     []subscription
	nextID   uint64
	closed   bool
	wake     chan struct{}
	done     chan struct{}
	draining sync.Once
}

func newDispatcher(logger Logger, handlers ...HandlerFunc) *dispatcher {
	d := &dispatcher{
		logger:  logger,
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, h := range handlers {
		d.subscribe(h)
	}

	go d.run()
	return d
}

// subscribe registers handler and returns a func that removes it again.
func (d *dispatcher) subscribe(handler HandlerFunc) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, handler: handler})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// submit queues ev for delivery without blocking.
// It returns false once the dispatcher has been closed.
func (d *dispatcher) submit(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.pending.Add(ev)
	d.mu.Unlock()

	d.signal()
	return true
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close stops accepting events, delivers what is already queued and waits
// for the dispatch goroutine to exit. Safe to call multiple times.
func (d *dispatcher) close() {
	d.draining.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.signal()
	})
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		ev, subs, ok, closed := d.next()
		if !ok {
			if closed {
				return
			}
			<-d.wake
			continue
		}

		for _, s := range subs {
			d.deliver(s.handler, ev)
		}
	}
}

// next pops the oldest event together with the subscribers it goes to.
func (d *dispatcher) next() (Event, []subscription, bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending.Length() == 0 {
		return Event{}, nil, false, d.closed
	}

	ev := d.pending.Remove().(Event)
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	return ev, subs, true, false
}

func (d *dispatcher) deliver(handler HandlerFunc, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic", "event", ev.Type.String(), "panic", r)
		}
	}()

	handler(ev)
}
