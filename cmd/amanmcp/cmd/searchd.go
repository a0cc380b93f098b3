package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/output"
	"github.com/Aman-CERP/amanmcp/internal/searchd"
)

// newSearchdCmd groups the background search daemon's lifecycle
// commands.
func newSearchdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchd",
		Short: "Manage the background search daemon",
		Long: `searchd keeps a metadata store and its LLM clients warm across
CLI invocations so 'amanmcp search' can skip reconnecting on every call.

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show daemon status`,
	}

	cmd.AddCommand(newSearchdStartCmd())
	cmd.AddCommand(newSearchdStopCmd())
	cmd.AddCommand(newSearchdStatusCmd())
	return cmd
}

func newSearchdStartCmd() *cobra.Command {
	var foreground bool
	var dbPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background search daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			return runSearchdStart(cmd.Context(), cmd, foreground, dbPath)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite metadata store (required)")
	return cmd
}

func newSearchdStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running search daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchdStop(cmd)
		},
	}
}

func newSearchdStatusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show search daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchdStatus(cmd.Context(), cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runSearchdStart(ctx context.Context, cmd *cobra.Command, foreground bool, dbPath string) error {
	out := output.New(cmd.OutOrStdout())
	cfg := searchd.DefaultConfig()
	client := searchd.NewClient(cfg)

	if client.Available(ctx) {
		out.Status("", "searchd is already running")
		return nil
	}

	if foreground {
		logCfg := logging.DebugConfig()
		logCfg.WriteToStderr = true
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}

		engine, closeEngine, err := buildEngine(ctx, dbPath, true)
		if err != nil {
			return fmt.Errorf("build search engine: %w", err)
		}
		defer closeEngine()

		pidFile := searchd.NewPIDFile(cfg.PIDPath)
		if err := pidFile.Write(); err != nil {
			return err
		}
		defer func() { _ = pidFile.Remove() }()

		out.Status("", "Starting searchd in foreground...")
		out.Status("", fmt.Sprintf("Socket: %s", cfg.SocketPath))
		out.Status("", "Press Ctrl+C to stop")

		runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		server := searchd.NewServer(cfg, engine, slog.Default())
		return server.ListenAndServe(runCtx)
	}

	out.Status("", "Starting searchd in background...")
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}

	bgCmd := exec.Command(execPath, "searchd", "start", "--foreground", "--db", dbPath)
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("start searchd: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for i := 0; i < 20; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("searchd exited unexpectedly: %w", err)
			}
			return fmt.Errorf("searchd exited unexpectedly with code 0")
		default:
		}
		time.Sleep(100 * time.Millisecond)
		if client.Available(ctx) {
			out.Success(fmt.Sprintf("searchd started (pid: %d)", bgCmd.Process.Pid))
			return nil
		}
	}

	return fmt.Errorf("searchd failed to start within timeout")
}

func runSearchdStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg := searchd.DefaultConfig()
	pidFile := searchd.NewPIDFile(cfg.PIDPath)

	if !pidFile.IsRunning() {
		out.Status("", "searchd is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop searchd: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success(fmt.Sprintf("searchd stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "searchd not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill searchd: %w", err)
	}
	out.Success("searchd killed")
	return nil
}

func runSearchdStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := searchd.DefaultConfig()
	client := searchd.NewClient(cfg)

	if !client.Available(ctx) {
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(searchd.StatusResult{})
		}
		out.Status("", "searchd is not running")
		out.Status("", "Run 'amanmcp searchd start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out.Status("", "searchd is running")
	out.Status("", fmt.Sprintf("  PID:    %d", status.PID))
	out.Status("", fmt.Sprintf("  Uptime: %s", status.Uptime))
	out.Status("", fmt.Sprintf("  Socket: %s", cfg.SocketPath))
	return nil
}
