package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowgridgo/cmdrunner"
	"github.com/vk/flowgridgo/executor"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/trace"
	"github.com/vk/flowgridgo/tracesink/slogsink"
	"github.com/vk/flowgridgo/tracesink/socketio"
	"github.com/vk/flowgridgo/tracesink/webhook"
)

// Run loads the workflow, builds its graph, and executes it with the
// built-in command runner. It returns an error when the run does not
// complete cleanly, so callers can map outcomes to exit codes.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	w, err := a.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		return err
	}
	g, err := w.Graph()
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	runner, err := cmdrunner.FromWorkflow(w)
	if err != nil {
		return err
	}

	sinks, closers, err := a.buildSinks(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if cerr := c.Close(); cerr != nil {
				a.logger.Warn("trace sink close failed", "error", cerr)
			}
		}
	}()

	if cfg.HealthcheckPort > 0 {
		a.startHealthcheckServer(cfg.HealthcheckPort)
		defer a.stopHealthcheckServer()
	}

	exec, err := executor.New(g, runner, executor.Options{
		Strategy:    executor.Strategy(cfg.Strategy),
		Workers:     cfg.Workers,
		GracePeriod: cfg.GracePeriod,
		Logger:      a.logger,
		Sinks:       sinks,
	})
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := exec.Run(ctx)
	if err != nil {
		return err
	}

	a.printSummary(res, time.Since(started))
	if res.Status != executor.Completed {
		return fmt.Errorf("run %s finished with status %s", res.RunID, res.Status)
	}
	return nil
}

// Validate loads the workflow and builds its graph without executing
// anything, surfacing definition errors.
func (a *App) Validate(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	w, err := a.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		return err
	}
	g, err := w.Graph()
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	fmt.Fprintf(a.out, "workflow %q is valid: %d nodes, %d edges\n", w.Name, g.Len(), len(g.Edges()))
	return nil
}

// Plan prints scheduling diagnostics for the workflow: topological
// order, parallel batches, and the critical path under uniform weights.
func (a *App) Plan(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	w, err := a.Load(ctx, cfg.WorkflowPath)
	if err != nil {
		return err
	}
	g, err := w.Graph()
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	fmt.Fprintf(a.out, "workflow %q\n\ntopological order:\n", w.Name)
	for i, id := range g.TopologicalOrder() {
		fmt.Fprintf(a.out, "  %2d. %s\n", i+1, string(id))
	}

	fmt.Fprintf(a.out, "\nparallel batches:\n")
	for i, wave := range g.ParallelBatches() {
		fmt.Fprintf(a.out, "  wave %d:", i)
		for _, id := range wave {
			fmt.Fprintf(a.out, " %s", string(id))
		}
		fmt.Fprintln(a.out)
	}

	fmt.Fprintf(a.out, "\ncritical path:")
	for _, id := range g.CriticalPath(nil) {
		fmt.Fprintf(a.out, " %s", string(id))
	}
	fmt.Fprintln(a.out)
	return nil
}

type closer interface {
	Close() error
}

// buildSinks assembles the trace sinks for one run: always the log sink,
// plus the optional webhook and socket.io streamers.
func (a *App) buildSinks(cfg *Config) ([]trace.Sink, []closer, error) {
	sinks := []trace.Sink{slogsink.New(a.logger)}
	var closers []closer

	if cfg.WebhookURL != "" {
		s, err := webhook.New(webhook.Config{URL: cfg.WebhookURL, Logger: a.logger})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	if cfg.SocketIOURL != "" {
		s, err := socketio.New(socketio.Config{URL: cfg.SocketIOURL, Logger: a.logger})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s)
	}
	return sinks, closers, nil
}

// printSummary writes a human-readable account of the run.
func (a *App) printSummary(res *executor.Result, elapsed time.Duration) {
	counts := map[trace.Status]int{}
	for _, ev := range res.Trace {
		if ev.Status.Terminal() {
			counts[ev.Status]++
		}
	}
	fmt.Fprintf(a.out, "run %s: %s in %s\n", res.RunID, res.Status, elapsed.Round(time.Millisecond))
	fmt.Fprintf(a.out, "  succeeded=%d failed=%d skipped=%d cancelled=%d\n",
		counts[trace.StatusSucceeded], counts[trace.StatusFailed],
		counts[trace.StatusSkipped], counts[trace.StatusCancelled])
	if len(res.Context) > 0 {
		fmt.Fprintf(a.out, "  context keys: %d\n", len(res.Context))
	}
}
