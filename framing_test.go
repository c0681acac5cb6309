package tcpmsg

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(f *framer) []string {
	var out []string
	for {
		msg, ok := f.next()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestFramer_SplitsMessages(t *testing.T) {
	f := newFramer(DefaultDelimiter, 0)
	f.feed([]byte("a<!EOL!>b<!EOL!>c"))

	assert.Equal(t, []string{"a", "b"}, drain(f))
	assert.Equal(t, 1, f.buffered())

	f.feed([]byte("<!EOL!>"))
	assert.Equal(t, []string{"c"}, drain(f))
	assert.Zero(t, f.buffered())
}

func TestFramer_DelimiterSplitAcrossChunks(t *testing.T) {
	f := newFramer(DefaultDelimiter, 0)

	f.feed([]byte("hello<!E"))
	assert.Empty(t, drain(f))

	f.feed([]byte("OL"))
	assert.Empty(t, drain(f))

	f.feed([]byte("!>"))
	assert.Equal(t, []string{"hello"}, drain(f))
}

func TestFramer_ResumesSearchWhereItStopped(t *testing.T) {
	f := newFramer(DefaultDelimiter, 0)
	body := strings.Repeat("x", 4096)

	for i := 0; i < len(body); i++ {
		f.feed([]byte{body[i]})
		assert.Empty(t, drain(f))
	}
	// Only the tail that could begin a delimiter is searched again.
	assert.Equal(t, len(body)-(len(DefaultDelimiter)-1), f.scanned)

	for i := 0; i < len(DefaultDelimiter); i++ {
		f.feed([]byte{DefaultDelimiter[i]})
		drained := drain(f)
		if i < len(DefaultDelimiter)-1 {
			assert.Empty(t, drained)
			continue
		}
		assert.Equal(t, []string{body}, drained)
	}
	assert.Zero(t, f.scanned)
	assert.Zero(t, f.buffered())

	f.feed([]byte("next<!EOL!>"))
	assert.Equal(t, []string{"next"}, drain(f))
}

func TestFramer_EmptyMessages(t *testing.T) {
	f := newFramer("\n", 0)
	f.feed([]byte("\n\nx\n"))

	assert.Equal(t, []string{"", "", "x"}, drain(f))
}

func TestFramer_MultiByteRuneSplit(t *testing.T) {
	wire := []byte("héllo wörld<!EOL!>")
	f := newFramer(DefaultDelimiter, 0)

	// cut inside the two-byte é
	f.feed(wire[:2])
	f.feed(wire[2:])

	assert.Equal(t, []string{"héllo wörld"}, drain(f))
}

func TestFramer_Overflow(t *testing.T) {
	f := newFramer(DefaultDelimiter, 8)

	f.feed([]byte("12345678"))
	assert.NoError(t, f.overflow())

	f.feed([]byte("9"))
	assert.ErrorIs(t, f.overflow(), ErrMessageTooLarge)
}

func TestFramer_OverflowIgnoresCompleteMessages(t *testing.T) {
	f := newFramer(DefaultDelimiter, 4)
	f.feed([]byte("1234<!EOL!>5678<!EOL!>9"))

	assert.Equal(t, []string{"1234", "5678"}, drain(f))
	assert.NoError(t, f.overflow())
}

func TestFramer_AnyFragmentation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var payloads []string
	for i := 0; i < 200; i++ {
		payloads = append(payloads, strings.Repeat(fmt.Sprintf("m%d-ü-", i), rng.Intn(5)+1))
	}
	wire := []byte(strings.Join(payloads, DefaultDelimiter) + DefaultDelimiter)

	for round := 0; round < 20; round++ {
		f := newFramer(DefaultDelimiter, 0)

		var got []string
		for rest := wire; len(rest) > 0; {
			n := rng.Intn(32) + 1
			if n > len(rest) {
				n = len(rest)
			}
			f.feed(rest[:n])
			rest = rest[n:]
			got = append(got, drain(f)...)
		}

		require.Equal(t, payloads, got, "round %d", round)
		require.Zero(t, f.buffered())
	}
}

// runReadLoop runs the read engine on raw until it exits and returns how
// many times the disconnect path was entered.
func runReadLoop(e *endpoint, raw *scriptedConn) (*Conn, int) {
	c := newConn(raw, 1, nil)

	var disconnects atomic.Int32
	e.readLoop(c, func(c *Conn) {
		disconnects.Add(1)
		c.release()
	})
	return c, int(disconnects.Load())
}

func TestReadLoop_MessagesOfOneReadBeforeNextRead(t *testing.T) {
	e, rec := newTestEndpoint(t)
	raw := newScriptedConn("a<!EOL!>b<!EOL!>c<!EOL!>", "d<!EOL!>")

	var c *Conn
	var receivedAtSecondRead atomic.Int64
	raw.onRead = func(reads int) {
		if reads == 2 {
			receivedAtSecondRead.Store(c.BytesReceived())
		}
	}

	c = newConn(raw, 1, nil)
	e.readLoop(c, func(c *Conn) { c.release() })

	assert.Equal(t, int64(3*(1+len(DefaultDelimiter))), receivedAtSecondRead.Load())

	rec.waitFor(t, EventMessageReceived, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.texts())
}

func TestReadLoop_MessageSplitAcrossReads(t *testing.T) {
	e, rec := newTestEndpoint(t)
	raw := newScriptedConn("hel", "lo<!E", "OL!>")

	c, disconnects := runReadLoop(e, raw)
	assert.Equal(t, 1, disconnects)

	e.events.close()
	assert.Equal(t, []string{"hello"}, rec.texts())

	ev := rec.ofType(EventMessageReceived)[0]
	assert.Same(t, c, ev.Conn)
	assert.Equal(t, len("hello")+len(DefaultDelimiter), ev.Bytes)
}

func TestReadLoop_CountersMatchDeliveredMessages(t *testing.T) {
	e, rec := newTestEndpoint(t, DelimiterOption("|"))
	raw := newScriptedConn("one|tw", "o|three|", "|fo", "ur|")

	c, _ := runReadLoop(e, raw)
	e.events.close()

	var sum int64
	for _, ev := range rec.ofType(EventMessageReceived) {
		sum += int64(len(ev.Text) + 1)
	}
	assert.Equal(t, []string{"one", "two", "three", "", "four"}, rec.texts())
	assert.Equal(t, sum, e.TotalBytesReceived())
	assert.Equal(t, sum, c.BytesReceived())
}

func TestReadLoop_EOFEndsQuietly(t *testing.T) {
	e, rec := newTestEndpoint(t)
	raw := newScriptedConn("x<!EOL!>")

	c, disconnects := runReadLoop(e, raw)
	e.events.close()

	assert.Equal(t, 1, disconnects)
	assert.True(t, c.IsClosed())
	assert.Len(t, rec.ofType(EventMessageReceived), 1)
	assert.Empty(t, rec.ofType(EventClientError))
}

func TestReadLoop_BenignErrorSwallowed(t *testing.T) {
	e, rec := newTestEndpoint(t)
	raw := newScriptedConn("x<!EOL!>")
	raw.readErr = &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}

	_, disconnects := runReadLoop(e, raw)
	e.events.close()

	assert.Equal(t, 1, disconnects)
	assert.Empty(t, rec.ofType(EventClientError))
}

func TestReadLoop_UnexpectedErrorReported(t *testing.T) {
	e, rec := newTestEndpoint(t)
	boom := errors.New("boom")
	raw := newScriptedConn("partial")
	raw.readErr = boom

	c, disconnects := runReadLoop(e, raw)
	e.events.close()

	assert.Equal(t, 1, disconnects)
	errs := rec.ofType(EventClientError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, boom)
	assert.Same(t, c, errs[0].Conn)
	assert.Empty(t, rec.ofType(EventMessageReceived))
}

func TestReadLoop_MessageTooLarge(t *testing.T) {
	e, rec := newTestEndpoint(t, MaxMessageSizeOption(4))
	raw := newScriptedConn("ok<!EOL!>abcdefgh", "never<!EOL!>")

	_, disconnects := runReadLoop(e, raw)
	e.events.close()

	assert.Equal(t, 1, disconnects)
	assert.Equal(t, []string{"ok"}, rec.texts())
	errs := rec.ofType(EventClientError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, ErrMessageTooLarge)
}

func TestReadLoop_NotRunning(t *testing.T) {
	e, _ := newTestEndpoint(t)
	e.running.Store(false)
	raw := newScriptedConn("x<!EOL!>")

	_, disconnects := runReadLoop(e, raw)

	assert.Equal(t, 1, disconnects)
	assert.Zero(t, raw.reads)
}

func TestIsBenignReadError(t *testing.T) {
	assert.True(t, isBenignReadError(net.ErrClosed))
	assert.True(t, isBenignReadError(errors.Wrap(syscall.ECONNABORTED, "read")))
	assert.True(t, isBenignReadError(&net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.EPIPE)}))
	assert.False(t, isBenignReadError(errors.New("boom")))
	assert.False(t, isBenignReadError(os.ErrDeadlineExceeded))
}
