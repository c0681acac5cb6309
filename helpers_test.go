package tcpmsg

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

// recorder collects every event it is handed.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

func (r *recorder) ofType(typ EventType) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) texts() []string {
	var out []string
	for _, ev := range r.ofType(EventMessageReceived) {
		out = append(out, ev.Text)
	}
	return out
}

// waitFor blocks until at least n events of typ were recorded.
func (r *recorder) waitFor(t *testing.T, typ EventType, n int) []Event {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(r.ofType(typ)) >= n
	}, waitTimeout, 5*time.Millisecond, "waiting for %d %s events", n, typ)

	return r.ofType(typ)
}

// createTestTCPPair creates a connected pair of TCP connections for testing.
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer listener.Close()

	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	serverConn, err := listener.AcceptTCP()
	require.NoError(t, err)

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
	case <-time.After(waitTimeout):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
	}
	return nil, nil
}

// readFull reads exactly n bytes from conn or fails the test.
func readFull(t *testing.T, conn net.Conn, n int) string {
	t.Helper()

	buf := make([]byte, n)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}

// scriptedConn replays fixed chunks, one per Read, so tests control exactly
// how the byte stream is fragmented.
type scriptedConn struct {
	net.Conn

	mu       sync.Mutex
	chunks   [][]byte
	reads    int
	readErr  error // returned once chunks run out, io.EOF if nil
	onRead   func(reads int)
	closed   bool
	closes   int
	written  bytes.Buffer
	writeErr error
}

func newScriptedConn(chunks ...string) *scriptedConn {
	s := &scriptedConn{}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *scriptedConn) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, net.ErrClosed
	}
	s.reads++
	reads, hook := s.reads, s.onRead

	if len(s.chunks) == 0 {
		err := s.readErr
		s.mu.Unlock()
		if hook != nil {
			hook(reads)
		}
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}

	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	s.mu.Unlock()

	if hook != nil {
		hook(reads)
	}
	return copy(p, chunk), nil
}

func (s *scriptedConn) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.written.Write(p)
}

func (s *scriptedConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.closes++
	return nil
}

func (s *scriptedConn) SetReadDeadline(time.Time) error { return nil }

func (s *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

func (s *scriptedConn) writtenString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

// newTestEndpoint returns a running endpoint whose events land in the
// returned recorder.
func newTestEndpoint(t *testing.T, opt ...Option) (*endpoint, *recorder) {
	t.Helper()

	rec := &recorder{}
	opt = append(opt, OnEventOption(rec.handle), LoggerOption(&mockLogger{}))
	e, err := newEndpoint(opt...)
	require.NoError(t, err)

	e.running.Store(true)
	t.Cleanup(e.events.close)
	return e, rec
}
