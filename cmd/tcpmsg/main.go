package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tcpmsg",
		Short: "Delimiter-framed text messaging over TCP",
		Long: `tcpmsg exchanges delimiter-framed text messages over persistent TCP
connections.

Run "tcpmsg serve" to accept connections and broadcast every line typed on
stdin, or "tcpmsg connect" to dial a server and send every line typed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		connectCmd(),
		versionCmd(),
	)

	return rootCmd
}
