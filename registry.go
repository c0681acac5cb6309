package tcpmsg

import "sync"

// registry is the ordered set of live connections owned by a Server.
// Insertion and removal happen under one lock together with the admission
// check and the socket release, so a registered Conn always has a socket.
type registry struct {
	mu    sync.RWMutex
	conns []*Conn
}

// add appends c if admit, run under the lock, agrees.
func (r *registry) add(c *Conn, admit func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !admit() {
		return false
	}
	r.conns = append(r.conns, c)
	return true
}

// remove releases c and drops it from the registry. It reports false if c
// is not registered, so concurrent callers remove it only once.
func (r *registry) remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, cc := range r.conns {
		if cc == c {
			c.release()
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns a copy safe to iterate while connections come and go.
func (r *registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, len(r.conns))
	copy(conns, r.conns)
	return conns
}

func (r *registry) lookup(id string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conns {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
