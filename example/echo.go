package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zereker/tcpmsg"
)

func main() {
	server, err := tcpmsg.NewServer(tcpmsg.DelimiterOption("\n"))
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}
	defer server.Close()

	// Echo every message back on the connection it came from.
	server.Subscribe(func(ev tcpmsg.Event) {
		switch ev.Type {
		case tcpmsg.EventClientConnected:
			slog.Info("add new conn", "conn", ev.Conn.ID(), "addr", ev.Conn.RemoteAddr())
		case tcpmsg.EventMessageReceived:
			if err := server.Send(ev.Conn, ev.Text); err != nil {
				slog.Error("echo failed", "conn", ev.Conn.ID(), "error", err)
			}
		case tcpmsg.EventClientError, tcpmsg.EventServerError:
			slog.Error("connection error", "error", ev.Err)
		}
	})

	if err := server.Start("127.0.0.1", 12345); err != nil {
		slog.Error("server error", "error", err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down server...")
	_ = server.Stop()
}
