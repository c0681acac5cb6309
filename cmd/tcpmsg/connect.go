package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zereker/tcpmsg"
)

func connectCmd() *cobra.Command {
	var (
		common  commonFlags
		host    string
		port    int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a server and send stdin lines",
		Long: `Dial a server, print every event, and send each line read from stdin as
one message. Exits when the server hangs up, on SIGINT/SIGTERM or at end of
input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := &printer{w: cmd.OutOrStdout()}
			hangup := make(chan struct{}, 1)

			opts := append(common.options(),
				tcpmsg.OnEventOption(out.handle),
				tcpmsg.OnEventOption(func(ev tcpmsg.Event) {
					if ev.Type == tcpmsg.EventClientDisconnected {
						select {
						case hangup <- struct{}{}:
						default:
						}
					}
				}),
			)
			client, err := tcpmsg.NewClient(opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			dialCtx, cancel := context.WithTimeout(ctx, timeout)
			err = client.Connect(dialCtx, host, port)
			cancel()
			if err != nil {
				return err
			}

			lines := make(chan string)
			go readLines(ctx, cmd.InOrStdin(), lines)

			for {
				select {
				case <-ctx.Done():
					return client.Disconnect()
				case <-hangup:
					return nil
				case line, ok := <-lines:
					if !ok {
						return client.Disconnect()
					}
					if err := client.Send(line); err != nil {
						return err
					}
				}
			}
		},
	}

	common.register(cmd)
	cmd.Flags().StringVarP(&host, "host", "H", "127.0.0.1", "Server host")
	cmd.Flags().IntVarP(&port, "port", "p", 1982, "Server port")
	cmd.Flags().DurationVar(&timeout, "dial-timeout", 10*time.Second, "Connect timeout")

	return cmd
}
