package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Zereker/tcpmsg"
	"github.com/Zereker/tcpmsg/metrics"
)

func serveCmd() *cobra.Command {
	var (
		common      commonFlags
		address     string
		port        int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and broadcast stdin lines",
		Long: `Listen for connections, print every event, and broadcast each line read
from stdin to all connected clients. Stops on SIGINT/SIGTERM or end of input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			collector := metrics.New(metrics.WithRegistry(registry), metrics.WithSubsystem("server"))
			out := &printer{w: cmd.OutOrStdout()}

			opts := append(common.options(),
				tcpmsg.OnEventOption(out.handle),
				tcpmsg.OnEventOption(collector.Handle),
			)
			server, err := tcpmsg.NewServer(opts...)
			if err != nil {
				return err
			}
			defer server.Close()

			if err := server.Start(address, port); err != nil {
				return err
			}

			if metricsAddr != "" {
				admin := &http.Server{
					Addr:              metricsAddr,
					Handler:           adminRouter(server, registry),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						cmd.PrintErrf("admin server: %v\n", err)
					}
				}()
				defer admin.Close()
			}

			lines := make(chan string)
			go readLines(ctx, cmd.InOrStdin(), lines)

			for {
				select {
				case <-ctx.Done():
					return server.Stop()
				case line, ok := <-lines:
					if !ok {
						return server.Stop()
					}
					server.Broadcast(line)
				}
			}
		},
	}

	common.register(cmd)
	cmd.Flags().StringVarP(&address, "address", "a", "127.0.0.1", "Listen address")
	cmd.Flags().IntVarP(&port, "port", "p", 1982, "Listen port")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /connections on this address")

	return cmd
}

// adminRouter exposes Prometheus metrics and the connection registry.
func adminRouter(server *tcpmsg.Server, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(server.Connections())
	})
	r.Post("/connections/{id}/disconnect", func(w http.ResponseWriter, r *http.Request) {
		c := server.Conn(chi.URLParam(r, "id"))
		if c == nil {
			http.NotFound(w, r)
			return
		}
		_ = server.Disconnect(c)
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}
