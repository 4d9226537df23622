package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devloop/pkg/loop"
	"devloop/pkg/persistence"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and queue state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := loop.CurrentStatus(store)
	if err != nil {
		return err
	}

	if status.Running {
		state := "running"
		if status.Paused {
			state = "paused"
		}
		fmt.Printf("Daemon: %s (PID %d)\n", state, status.PID)
	} else {
		fmt.Println("Daemon: stopped")
	}

	fmt.Println("Requests:")
	for _, s := range []string{
		persistence.StatusTBD, persistence.StatusWIP, persistence.StatusDone,
		persistence.StatusError, persistence.StatusTimeout,
	} {
		if n := status.StatusCounts[s]; n > 0 {
			fmt.Printf("  %-6s %d\n", s, n)
		}
	}
	if len(status.StatusCounts) == 0 {
		fmt.Println("  (none)")
	}
	return nil
}
