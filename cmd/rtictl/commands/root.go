// Package commands implements the rtictl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the plain HTTP client used against the daemon's
	// debug/inspection endpoint. There is no RPC framework here:
	// the RTI<->federate wire protocol is the fixed binary codec, and
	// the inspection surface is a small read-only JSON API, so a bare
	// net/http client is the right tool rather than carrying a gRPC
	// stack for one GET request.
	httpClient = &http.Client{Timeout: 5 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's debug endpoint address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for rtictl.
var rootCmd = &cobra.Command{
	Use:   "rtictl",
	Short: "Inspection CLI for the lf-rti daemon",
	Long:  "rtictl queries the lf-rti daemon's debug/inspection HTTP endpoint to show federate state, tags, and stop-consensus progress.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"lf-rti daemon debug endpoint address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
