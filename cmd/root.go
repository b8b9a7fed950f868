package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "initplane",
	Short: "Initplane brings a database to a known, versioned schema state before the application starts.",
	Long: `Initplane is a deployment-time schema migration orchestrator. It probes the
target database, classifies its schema state, selects a remediation strategy,
drives the external migration tool, and verifies the result. It exits 0 only
when the database is safe to start the application against.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the structured, timestamped logger every stage decision
// goes through. The log stream is the only postmortem artifact of an
// unattended run.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
