package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/runctx"
	"github.com/vk/flowgridgo/trace"
)

// InputMissingError reports a required input with no committed value and
// no default at dispatch time. It is fatal for the node in question; the
// unit of work is never invoked.
type InputMissingError struct {
	Node graph.NodeID
	Key  string
}

func (e *InputMissingError) Error() string {
	return fmt.Sprintf("node %q: required input %q missing from context", string(e.Node), e.Key)
}

// runNode drives one node through its attempts until it reaches a
// terminal status, which is returned. Every state transition appends
// exactly one trace record.
func (e *Executor) runNode(ctx context.Context, id graph.NodeID) trace.Status {
	node, ok := e.graph.Node(id)
	if !ok {
		// Graph and dispatch tables are built from the same node set.
		panic(fmt.Sprintf("executor: dispatch of undeclared node %q", id))
	}
	logger := ctxlog.FromContext(ctx).With("node", string(id))
	pol := node.Policy

	for attempt := 1; ; attempt++ {
		inputs, expected, err := e.resolveInputs(node)
		if err != nil {
			// Missing required input: fatal without invoking the runner.
			now := time.Now()
			logger.Warn("input resolution failed", "error", err)
			e.record(id, attempt, trace.StatusFailed, now, now, err, nil)
			e.setState(id, trace.StatusFailed)
			return trace.StatusFailed
		}

		start := time.Now()
		e.record(id, attempt, trace.StatusRunning, start, time.Time{}, nil, nil)
		e.setState(id, trace.StatusRunning)
		logger.Debug("attempt starting", "attempt", attempt, "max_attempts", pol.MaxAttempts)

		outputs, err := e.invoke(ctx, node, inputs)
		end := time.Now()

		if err == nil {
			delta := declaredOutputs(node, outputs)
			if _, mergeErr := e.store.Merge(delta, expected); mergeErr != nil {
				// Version conflict on commit: the node's completion is
				// treated as a retryable failure so it can re-read and
				// re-run under its own policy.
				err = mergeErr
			} else {
				e.record(id, attempt, trace.StatusSucceeded, start, end, nil, delta)
				e.setState(id, trace.StatusSucceeded)
				logger.Debug("attempt succeeded", "attempt", attempt, "outputs", len(delta))
				return trace.StatusSucceeded
			}
		}

		if ctx.Err() != nil {
			e.record(id, attempt, trace.StatusCancelled, start, time.Now(), err, nil)
			e.setState(id, trace.StatusCancelled)
			logger.Warn("attempt cancelled", "attempt", attempt, "error", err)
			return trace.StatusCancelled
		}

		if pol.ShouldRetry(err, attempt) {
			e.record(id, attempt, trace.StatusRetrying, start, time.Now(), err, nil)
			e.setState(id, trace.StatusRetrying)
			delay := pol.Backoff(attempt)
			logger.Warn("attempt failed, retrying", "attempt", attempt, "backoff", delay, "error", err)
			if !sleepCtx(ctx, delay) {
				e.record(id, attempt, trace.StatusCancelled, time.Now(), time.Now(), ctx.Err(), nil)
				e.setState(id, trace.StatusCancelled)
				return trace.StatusCancelled
			}
			continue
		}

		e.record(id, attempt, trace.StatusFailed, start, time.Now(), err, nil)
		e.setState(id, trace.StatusFailed)
		logger.Warn("node failed", "attempt", attempt, "error", err)
		return trace.StatusFailed
	}
}

// resolveInputs reads the node's declared inputs from the context store,
// falling back to declared defaults. It also snapshots the current
// versions of the node's declared output keys; Merge later uses them to
// detect lost updates from concurrently completing siblings.
func (e *Executor) resolveInputs(node *graph.Node) (map[string]any, map[string]uint64, error) {
	inputs := make(map[string]any, len(node.Inputs))
	for _, key := range node.Inputs {
		value, _, err := e.store.Get(key)
		if err == nil {
			inputs[key] = value
			continue
		}
		if !errors.Is(err, runctx.ErrNotFound) {
			return nil, nil, err
		}
		if def, ok := node.Defaults[key]; ok {
			inputs[key] = def
			continue
		}
		return nil, nil, &InputMissingError{Node: node.ID, Key: key}
	}

	expected := make(map[string]uint64, len(node.Outputs))
	for _, key := range node.Outputs {
		expected[key] = e.store.Version(key)
	}
	return inputs, expected, nil
}

// invoke calls the injected runner with the node's per-attempt timeout
// applied. Cancellation and timeout are cooperative: when the attempt
// context ends first, the engine waits up to the grace period for the
// runner to return, then abandons the call and reports the context error
// regardless of what the runner does later.
func (e *Executor) invoke(ctx context.Context, node *graph.Node, inputs map[string]any) (map[string]any, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if node.Policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, node.Policy.Timeout)
	}
	defer cancel()

	type attemptResult struct {
		outputs map[string]any
		err     error
	}
	done := make(chan attemptResult, 1)
	go func() {
		outputs, err := e.runner.Execute(attemptCtx, node.ID, inputs)
		done <- attemptResult{outputs: outputs, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && attemptCtx.Err() != nil {
			// The scheduler enforces the timeout independently of the
			// runner's own timing: a result arriving after the deadline
			// counts as timed out.
			return nil, fmt.Errorf("node %q: %w", string(node.ID), attemptCtx.Err())
		}
		return r.outputs, r.err
	case <-attemptCtx.Done():
		grace := time.NewTimer(e.opts.GracePeriod)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
			ctxlog.FromContext(ctx).Warn("runner ignored cancellation past grace period",
				"node", string(node.ID), "grace", e.opts.GracePeriod)
		}
		return nil, fmt.Errorf("node %q: %w", string(node.ID), attemptCtx.Err())
	}
}

// declaredOutputs filters the runner's outputs down to the node's
// declared output keys. Undeclared keys are dropped; declared keys the
// runner did not produce are simply absent from the delta.
func declaredOutputs(node *graph.Node, outputs map[string]any) map[string]any {
	delta := make(map[string]any, len(node.Outputs))
	for _, key := range node.Outputs {
		if v, ok := outputs[key]; ok {
			delta[key] = v
		}
	}
	return delta
}

// record appends one trace event.
func (e *Executor) record(id graph.NodeID, attempt int, st trace.Status, start, end time.Time, err error, delta map[string]any) {
	ev := trace.NodeExecution{
		Node:    string(id),
		Attempt: attempt,
		Status:  st,
		Start:   start,
		End:     end,
		Delta:   delta,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.rec.Record(ev)
}

// sleepCtx waits for d or until ctx ends; it reports false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
