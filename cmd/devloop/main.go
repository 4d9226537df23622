// devloop is a phase-based orchestrator for AI coding requests: it queues
// development requests per project, walks each one through plan, dev, test,
// deploy, verify, document, and commit phases, and drives an AI agent to do
// the work at every step.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devloop/pkg/config"
	"devloop/pkg/persistence"
)

var (
	dataDir string

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "devloop",
	Short: "Phase-based development loop for AI coding requests",
	Long: `devloop queues development requests per project and advances each one
through plan, dev, test, deploy, verify, document, and commit phases,
invoking an AI coding agent at every step.

Typical flow:
  devloop init                 Initialize the data directory and database
  devloop wizard               Create a project and its first request
  devloop daemon start         Start the processing loop
  devloop status               Check queue and daemon state
  devloop dashboard            Serve the web dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return config.Load(dataDir)
	},
}

func init() {
	defaultDir := os.Getenv("DEVLOOP_DATA_DIR")
	if defaultDir == "" {
		defaultDir = "data"
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDir,
		"Data directory for the database, settings, and docs")
}

// openStore creates the data directory if needed and opens the database,
// running migrations. Callers must Close the returned store.
func openStore() (*persistence.Store, error) {
	if err := os.MkdirAll(config.DataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return persistence.Open(config.DatabasePath())
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
