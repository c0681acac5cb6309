package tcpmsg

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// maxAcceptDelay bounds the back-off after consecutive accept failures.
const maxAcceptDelay = time.Second

// acceptor is the part of *net.TCPListener the accept loop relies on.
type acceptor interface {
	AcceptTCP() (*net.TCPConn, error)
	Close() error
	Addr() net.Addr
}

// Server accepts inbound connections and keeps them in a registry.
type Server struct {
	*endpoint

	conns registry

	// listenHook, when set, wraps every new listener before the accept loop
	// starts using it.
	listenHook func(acceptor) acceptor

	mu       sync.Mutex // serializes Start and Stop, guards the fields below
	listener acceptor
	stopping chan struct{}   // closed by Stop to cut an accept back-off short
	group    *errgroup.Group // accept loop and reader goroutines of the current run
	address  string
	port     int
}

// NewServer creates a Server. It does not listen.
func NewServer(opt ...Option) (*Server, error) {
	e, err := newEndpoint(opt...)
	if err != nil {
		return nil, err
	}
	return &Server{endpoint: e}, nil
}

// Start binds address:port and starts accepting in the background.
// Port 0 picks a free port; Addr reports the one chosen. A bind failure is
// returned and reported as EventServerError, leaving the server stopped.
func (s *Server) Start(address string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}

	hostPort := net.JoinHostPort(address, strconv.Itoa(port))

	var (
		listener acceptor
		err      error
	)
	if port < 0 || port > 65535 {
		err = errors.Wrapf(ErrInvalidAddress, "listen %s", hostPort)
	} else if listener, err = listen(hostPort); err != nil {
		err = errors.Wrapf(err, "listen %s", hostPort)
	}
	if err != nil {
		s.logger.Error("server start failed", "addr", hostPort, "error", err)
		s.events.submit(Event{Type: EventServerError, Err: err})
		return err
	}

	if s.listenHook != nil {
		listener = s.listenHook(listener)
	}

	group := new(errgroup.Group)
	stopping := make(chan struct{})
	s.listener = listener
	s.stopping = stopping
	s.group = group
	s.address = address
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.running.Store(true)
	s.logger.Info("server started", "addr", listener.Addr())
	s.events.submit(Event{Type: EventServerStarted})

	group.Go(func() error {
		s.acceptLoop(listener, group, stopping)
		return nil
	})
	return nil
}

func listen(hostPort string) (acceptor, error) {
	addr, err := net.ResolveTCPAddr("tcp", hostPort)
	if err != nil {
		return nil, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// acceptLoop accepts until the listener is closed by Stop. Unexpected
// failures are reported and the loop keeps going after a short back-off,
// which closing stopping ends early.
func (s *Server) acceptLoop(listener acceptor, group *errgroup.Group, stopping <-chan struct{}) {
	var delay time.Duration

	for s.running.Load() {
		raw, err := listener.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.running.Load() {
				return
			}

			err = errors.Wrap(err, "accept")
			s.logger.Error("accept error", "error", err)
			s.events.submit(Event{Type: EventServerError, Err: err})

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-stopping:
				timer.Stop()
				return
			}
			continue
		}
		delay = 0

		conn := s.wrap(raw, raw.RemoteAddr())
		admitted := s.conns.add(conn, func() bool {
			if !s.running.Load() {
				return false
			}
			s.events.submit(Event{Type: EventClientConnected, Conn: conn})
			return true
		})
		if !admitted {
			_ = raw.Close()
			return
		}

		s.logger.Debug("accepted connection", "conn", conn.id, "remote_addr", raw.RemoteAddr())
		group.Go(func() error {
			s.readLoop(conn, s.disconnect)
			return nil
		})
	}
}

// Stop closes the listener, disconnects every registered connection, waits
// for the accept loop and all reader goroutines to exit and then fires
// EventServerStopped.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	close(s.stopping)
	s.stopping = nil

	addr := s.listener.Addr()
	_ = s.listener.Close()
	s.listener = nil

	for _, c := range s.conns.snapshot() {
		s.disconnect(c)
	}

	_ = s.group.Wait()
	s.group = nil

	s.logger.Info("server stopped", "addr", addr)
	s.events.submit(Event{Type: EventServerStopped})
	return nil
}

// Close stops the server if it is running and stops event delivery once
// every pending event has been handled. The server cannot be used afterwards.
func (s *Server) Close() error {
	if s.running.Load() {
		_ = s.Stop()
	}
	s.events.close()
	return nil
}

// Disconnect closes c and removes it from the registry. Reader goroutines
// and Stop go through here too, so EventClientDisconnected fires once per
// connection; later calls return ErrConnectionClosed.
func (s *Server) Disconnect(c *Conn) error {
	if c == nil || !s.conns.remove(c) {
		return ErrConnectionClosed
	}

	s.logger.Debug("client disconnected", "conn", c.id)
	s.events.submit(Event{Type: EventClientDisconnected, Conn: c})
	return nil
}

func (s *Server) disconnect(c *Conn) {
	_ = s.Disconnect(c)
}

// Send frames text and writes it to c.
func (s *Server) Send(c *Conn, text string) error {
	return s.send(c, text)
}

// SendTo sends text to the registered connection with the given id.
func (s *Server) SendTo(id, text string) error {
	c := s.conns.lookup(id)
	if c == nil {
		return ErrConnectionClosed
	}
	return s.send(c, text)
}

// Broadcast sends text to every registered connection, one after another.
// A failed send never stops the rest; the outcome of each is returned in
// registry order.
func (s *Server) Broadcast(text string) []SendResult {
	return s.broadcastTo(s.conns.snapshot(), text)
}

func (s *Server) broadcastTo(conns []*Conn, text string) []SendResult {
	results := make([]SendResult, 0, len(conns))
	for _, c := range conns {
		results = append(results, SendResult{ConnID: c.id, Err: s.send(c, text)})
	}
	return results
}

// Conn returns the registered connection with the given id, or nil.
func (s *Server) Conn(id string) *Conn {
	return s.conns.lookup(id)
}

// Connections returns a snapshot of every registered connection.
func (s *Server) Connections() []ConnInfo {
	conns := s.conns.snapshot()
	infos := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}
	return infos
}

// ConnectionCount returns the number of registered connections.
func (s *Server) ConnectionCount() int {
	return s.conns.len()
}

// Addr returns the listener's address, or nil when the server is stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the port bound by the last successful Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Address returns the address given to the last successful Start.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}
