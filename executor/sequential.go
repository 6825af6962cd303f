package executor

import (
	"context"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/trace"
)

// runSequential executes nodes strictly in topological order, one at a
// time. A node reaching a failed (or cancelled) terminal state aborts the
// remaining unscheduled nodes: they are recorded as skipped.
func (e *Executor) runSequential(ctx context.Context) {
	order := e.graph.TopologicalOrder()
	for i, id := range order {
		if ctx.Err() != nil {
			for _, rest := range order[i:] {
				e.markSkipped(ctx, rest, "run aborted")
			}
			return
		}
		if e.state(id) != trace.StatusPending {
			continue
		}

		st := e.runNode(ctx, id)
		if st == trace.StatusFailed || st == trace.StatusCancelled {
			reason := "upstream failure of '" + string(id) + "'"
			if st == trace.StatusCancelled {
				reason = "run aborted"
			}
			ctxlog.FromContext(ctx).Warn("sequential run stopping early", "node", string(id), "status", string(st))
			for _, rest := range order[i+1:] {
				e.markSkipped(ctx, rest, reason)
			}
			return
		}
	}
}
