// Package commands implements the gobcpctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the plain HTTP client used to reach a gobcpd node's
	// status endpoint. No ConnectRPC stub exists here: a gobcpd node only
	// exposes plain JSON over net/http (see internal/server).
	httpClient = &http.Client{Timeout: 5 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the node's status endpoint address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for gobcpctl.
var rootCmd = &cobra.Command{
	Use:   "gobcpctl",
	Short: "CLI client for a gobcp node's status endpoint",
	Long:  "gobcpctl queries a gobcp node's plain HTTP status endpoint to inspect its queue and routing table.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"gobcp node status address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
