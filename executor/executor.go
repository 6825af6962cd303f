// Package executor is the orchestration engine: it consumes a validated
// graph and a strategy, drives node execution through an injected
// unit-of-work runner, applies per-node failure policy, updates the
// shared context store, and emits the run trace.
//
// The engine is a library component. It never constructs the runner;
// invoking a model, tool, or process is the host's concern and arrives
// through the Runner interface.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/runctx"
	"github.com/vk/flowgridgo/trace"
)

// Strategy selects the execution-order semantics for a run.
type Strategy string

const (
	// Sequential runs nodes strictly in topological order, one at a time.
	Sequential Strategy = "sequential"
	// Parallel runs nodes concurrently; individual failures never block
	// siblings or dependents.
	Parallel Strategy = "parallel"
	// DAG dispatches dependency waves concurrently with a strict barrier
	// between waves and a bounded worker pool within each.
	DAG Strategy = "dag"
	// EventDriven additionally honors trigger edges: a triggered node is
	// dispatched only when a triggering node succeeds and the edge
	// predicate holds against the context store.
	EventDriven Strategy = "event-driven"
)

// RunStatus is the aggregate outcome of one orchestration run.
type RunStatus string

const (
	Completed       RunStatus = "completed"
	PartiallyFailed RunStatus = "partially-failed"
	Aborted         RunStatus = "aborted"
)

// Defaults for Options fields left zero.
const (
	DefaultWorkers     = 4
	DefaultGracePeriod = 5 * time.Second
)

// Runner is the injected unit-of-work executor, supplied once per run by
// the caller. Cancellation is signalled through ctx; runners must observe
// it and return promptly (cooperative cancellation, not forced
// termination).
type Runner interface {
	Execute(ctx context.Context, node graph.NodeID, inputs map[string]any) (map[string]any, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, node graph.NodeID, inputs map[string]any) (map[string]any, error)

func (f RunnerFunc) Execute(ctx context.Context, node graph.NodeID, inputs map[string]any) (map[string]any, error) {
	return f(ctx, node, inputs)
}

// Options configures one run.
type Options struct {
	// Strategy defaults to DAG.
	Strategy Strategy
	// Workers bounds the worker pool; defaults to DefaultWorkers.
	Workers int
	// GracePeriod is how long the engine waits for a cancelled or timed
	// out runner call to return before abandoning it; defaults to
	// DefaultGracePeriod.
	GracePeriod time.Duration
	// Logger receives engine logs; defaults to slog.Default.
	Logger *slog.Logger
	// Sinks receive every trace record as it is appended.
	Sinks []trace.Sink
}

func (o Options) normalize() Options {
	if o.Strategy == "" {
		o.Strategy = DAG
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result is the aggregate outcome of a run: its status, the frozen final
// context, and the full trace (ownership transferred to the caller).
type Result struct {
	Status  RunStatus
	RunID   string
	Context map[string]any
	Trace   []trace.NodeExecution
}

// Executor drives one orchestration run. Build one per run with New; an
// Executor is not reusable.
type Executor struct {
	graph  *graph.Graph
	runner Runner
	opts   Options

	store *runctx.Store
	rec   *trace.Recorder

	mu     sync.Mutex
	states map[graph.NodeID]trace.Status

	triggers map[graph.NodeID][]compiledTrigger

	ran bool
}

// New validates the configuration and prepares a run. Trigger-edge
// predicates are compiled here so malformed expressions fail before
// anything executes.
func New(g *graph.Graph, runner Runner, opts Options) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("executor: graph must not be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("executor: runner must not be nil")
	}
	opts = opts.normalize()
	switch opts.Strategy {
	case Sequential, Parallel, DAG, EventDriven:
	default:
		return nil, fmt.Errorf("executor: unknown strategy %q", opts.Strategy)
	}

	triggers, err := compileTriggers(g)
	if err != nil {
		return nil, err
	}

	states := make(map[graph.NodeID]trace.Status, g.Len())
	for _, id := range g.Nodes() {
		states[id] = trace.StatusPending
	}

	return &Executor{
		graph:    g,
		runner:   runner,
		opts:     opts,
		store:    runctx.New(),
		rec:      trace.NewRecorder(opts.Sinks...),
		states:   states,
		triggers: triggers,
	}, nil
}

// RunID returns the run's unique identifier.
func (e *Executor) RunID() string { return e.rec.RunID() }

// Run executes the graph under the configured strategy and returns the
// aggregate outcome. Node-local failures are contained in the trace and
// the run status; they are never returned as errors. Cancelling ctx
// aborts the run: running nodes are signalled, pending nodes are
// skipped, and the result status is Aborted.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	if e.ran {
		return nil, fmt.Errorf("executor: Run called twice; build a new Executor per run")
	}
	e.ran = true

	logger := e.opts.Logger.With("run_id", e.rec.RunID(), "strategy", string(e.opts.Strategy))
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("run starting", "nodes", e.graph.Len(), "workers", e.opts.Workers)

	switch e.opts.Strategy {
	case Sequential:
		e.runSequential(ctx)
	case Parallel:
		e.runParallel(ctx)
	case DAG:
		e.runDAG(ctx)
	case EventDriven:
		e.runEventDriven(ctx)
	}

	res := &Result{
		Status:  e.finalStatus(ctx),
		RunID:   e.rec.RunID(),
		Context: e.store.Freeze(),
		Trace:   e.rec.Handoff(),
	}
	logger.Info("run finished", "status", string(res.Status), "events", len(res.Trace))
	return res, nil
}

// state returns the current lifecycle status of a node.
func (e *Executor) state(id graph.NodeID) trace.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[id]
}

// setState records a node's new lifecycle status.
func (e *Executor) setState(id graph.NodeID, st trace.Status) {
	e.mu.Lock()
	e.states[id] = st
	e.mu.Unlock()
}

// markSkipped transitions a pending node to Skipped exactly once,
// appending the corresponding trace record.
func (e *Executor) markSkipped(ctx context.Context, id graph.NodeID, reason string) {
	e.mu.Lock()
	if e.states[id] != trace.StatusPending {
		e.mu.Unlock()
		return
	}
	e.states[id] = trace.StatusSkipped
	e.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("node skipped", "node", string(id), "reason", reason)
	e.rec.Record(trace.NodeExecution{
		Node:   string(id),
		Status: trace.StatusSkipped,
		Start:  time.Now(),
		Error:  reason,
	})
}

// depsOutcome summarizes a node's ordering predecessors: whether they
// have all reached a terminal state, and whether the node is blocked by a
// failed, skipped, or cancelled predecessor on a non-best-effort edge.
func (e *Executor) depsOutcome(id graph.NodeID) (terminal bool, blocked bool, blocker graph.NodeID) {
	terminal = true
	for _, pred := range e.graph.Dependencies(id) {
		st := e.state(pred)
		if !st.Terminal() {
			terminal = false
			continue
		}
		if st == trace.StatusSucceeded {
			continue
		}
		if edge, ok := e.graph.OrderingEdge(pred, id); ok && edge.BestEffort {
			// Best-effort edge: proceed with the predecessor's outputs
			// absent from context.
			continue
		}
		blocked = true
		blocker = pred
	}
	return terminal, blocked, blocker
}

// finalStatus derives the run status from the node states.
func (e *Executor) finalStatus(ctx context.Context) RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancelled := ctx.Err() != nil
	failed := false
	for _, st := range e.states {
		switch st {
		case trace.StatusCancelled:
			cancelled = true
		case trace.StatusFailed:
			failed = true
		}
	}
	if cancelled {
		return Aborted
	}
	if failed {
		return PartiallyFailed
	}
	return Completed
}
