// perspective-server runs a session router around the built-in in-memory
// engine, exposing a websocket endpoint for clients and a Prometheus
// metrics endpoint for operators.
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
	rootCmd := &cobra.Command{
		Use:           "perspective-server",
		Short:         "Multiplexing session router",
		Long:          "perspective-server fronts a shared processing engine with per-connection\nsessions, routing engine output back to the connection that owns it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("perspective-server %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
