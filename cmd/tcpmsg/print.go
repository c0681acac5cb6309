package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Zereker/tcpmsg"
)

// printer writes one line per event.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) handle(ev tcpmsg.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, formatEvent(ev))
}

func formatEvent(ev tcpmsg.Event) string {
	id := "-"
	if ev.Conn != nil {
		id = ev.Conn.ID()[:8]
	}

	switch ev.Type {
	case tcpmsg.EventMessageReceived:
		return fmt.Sprintf("[%s] < %s", id, ev.Text)
	case tcpmsg.EventMessageSent:
		return fmt.Sprintf("[%s] > %d bytes", id, ev.Bytes)
	case tcpmsg.EventClientConnected:
		if addr := ev.Conn.RemoteAddr(); addr != nil {
			return fmt.Sprintf("[%s] connected from %s", id, addr)
		}
		return fmt.Sprintf("[%s] connected", id)
	case tcpmsg.EventClientError, tcpmsg.EventServerError:
		return fmt.Sprintf("[%s] %s: %v", id, ev.Type, ev.Err)
	default:
		return fmt.Sprintf("[%s] %s", id, ev.Type)
	}
}

// readLines sends every line of r to out until r ends or ctx is done.
func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
