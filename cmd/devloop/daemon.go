package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"devloop/pkg/config"
	"devloop/pkg/gateway"
	"devloop/pkg/logx"
	"devloop/pkg/loop"
	"devloop/pkg/webui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the processing daemon",
	Long: `The daemon polls the request queue, processes one request at a time,
and sleeps when idle. Exactly one daemon may run per data directory;
a PID file enforces this.

Common operations:
  devloop daemon start               Start in the background
  devloop daemon start --foreground  Run in this terminal (for systemd)
  devloop daemon stop                Stop the running daemon
  devloop daemon status              Show daemon and queue state`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and queue state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	daemonStartCmd.Flags().Bool("foreground", false, "Run in the foreground instead of detaching")
	daemonStartCmd.Flags().Int("poll", 0, "Poll interval in seconds (persisted to settings)")
	daemonStartCmd.Flags().String("log", "", "Log file path (default <data-dir>/daemon.log when detached)")
	daemonStartCmd.Flags().String("name", "", "Loop name used in planning claims (default random)")
	daemonStartCmd.Flags().String("dashboard", "", "Also serve the web dashboard on this address (e.g. :8080)")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, _ []string) error {
	if pid, running := loop.DaemonPID(config.PIDFilePath()); running {
		return fmt.Errorf("daemon already running (PID %d); stop it first", pid)
	}

	if cmd.Flags().Changed("poll") {
		poll, _ := cmd.Flags().GetInt("poll")
		if poll <= 0 {
			return fmt.Errorf("poll interval must be positive, got %d", poll)
		}
		if err := config.Update(func(s *config.Settings) { s.PollIntervalSecs = poll }); err != nil {
			return err
		}
	}

	logPath, _ := cmd.Flags().GetString("log")
	foreground, _ := cmd.Flags().GetBool("foreground")
	if !foreground {
		return spawnDaemon(cmd, logPath)
	}

	if logPath != "" {
		if err := logx.InitializeLogFile(logPath, true); err != nil {
			return err
		}
		defer logx.CloseLogFile()
	}

	if err := loop.WritePIDFile(config.PIDFilePath()); err != nil {
		return err
	}
	defer func() {
		if err := loop.RemovePIDFile(config.PIDFilePath()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove PID file: %v\n", err)
		}
	}()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	settings := config.Get()
	apiKey := settings.ResolveAPIKey()
	if apiKey == "" {
		return fmt.Errorf("no API key: set ANTHROPIC_API_KEY or store one via 'devloop wizard'")
	}
	gw := gateway.NewClaudeGateway(apiKey, settings.Model)

	reg := prometheus.NewRegistry()
	name, _ := cmd.Flags().GetString("name")
	daemon, err := loop.NewNamedDaemon(store, gw, reg, name)
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("dashboard"); addr != "" {
		if err := webui.NewServer(store, reg).StartServer(rootCtx, addr); err != nil {
			return err
		}
	}

	return daemon.Run(rootCtx)
}

// spawnDaemon re-executes this binary with --foreground and detaches,
// sending output to the log file.
func spawnDaemon(cmd *cobra.Command, logPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	if logPath == "" {
		logPath = filepath.Join(config.DataDir(), "daemon.log")
	}
	if err := os.MkdirAll(config.DataDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"daemon", "start", "--foreground", "--data-dir", config.DataDir(), "--log", logPath}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		args = append(args, "--name", name)
	}
	if addr, _ := cmd.Flags().GetString("dashboard"); addr != "" {
		args = append(args, "--dashboard", addr)
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("Daemon started (PID %d), logging to %s\n", child.Process.Pid, logPath)
	return child.Process.Release()
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	if err := loop.StopDaemon(config.PIDFilePath()); err != nil {
		return err
	}
	fmt.Println("Daemon stopped")
	return nil
}
