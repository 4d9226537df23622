package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devloop/pkg/webui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the web dashboard",
	Long: `Serve the read-only web dashboard standalone. The dashboard reads the
same database as the daemon, so it can run whether or not the daemon is
up. Metrics are only exported from the daemon process; run
'daemon start --dashboard' to get /metrics as well.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().String("addr", "127.0.0.1:8666", "Listen address")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	addr, _ := cmd.Flags().GetString("addr")
	server := webui.NewServer(store, nil)
	if err := server.StartServer(rootCtx, addr); err != nil {
		return err
	}
	fmt.Printf("Dashboard at http://%s (Ctrl-C to stop)\n", addr)

	<-rootCtx.Done()
	return nil
}
