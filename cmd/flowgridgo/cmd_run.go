package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vk/flowgridgo/internal/app"
)

var runFlags struct {
	strategy        string
	workers         int
	gracePeriod     time.Duration
	logLevel        string
	logFormat       string
	healthcheckPort int
	webhookURL      string
	socketioURL     string
}

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Execute a workflow",
	Long: `Execute a workflow definition (.hcl, .yaml, or .yml).

Each node's executor reference is run as an operating-system command:
inputs arrive on stdin as JSON, declared outputs are read back from
stdout as JSON. The exit code is non-zero unless every node succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.strategy, "strategy", "dag", "Scheduling strategy: sequential, parallel, dag, event-driven")
	f.IntVar(&runFlags.workers, "workers", 0, "Concurrent node executions (0 uses the default)")
	f.DurationVar(&runFlags.gracePeriod, "grace-period", 0, "How long to wait for a cancelled node before abandoning it")
	f.StringVar(&runFlags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&runFlags.logFormat, "log-format", "text", "Log format: text or json")
	f.IntVar(&runFlags.healthcheckPort, "healthcheck-port", 0, "Serve /health on this port for the duration of the run (0 disables)")
	f.StringVar(&runFlags.webhookURL, "webhook-url", "", "Stream trace events to this HTTP endpoint")
	f.StringVar(&runFlags.socketioURL, "socketio-url", "", "Stream trace events to this socket.io server")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := &app.Config{
		WorkflowPath:    args[0],
		Strategy:        runFlags.strategy,
		Workers:         runFlags.workers,
		GracePeriod:     runFlags.gracePeriod,
		LogLevel:        runFlags.logLevel,
		LogFormat:       runFlags.logFormat,
		HealthcheckPort: runFlags.healthcheckPort,
		WebhookURL:      runFlags.webhookURL,
		SocketIOURL:     runFlags.socketioURL,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cmd.OutOrStdout(), cfg)
	if err := a.Run(ctx, cfg); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
