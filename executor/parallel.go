package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vk/flowgridgo/trace"
)

// runParallel executes the graph wave by wave with a bounded group of
// concurrent workers. Explicit ordering edges still gate dispatch, but a
// node's failure never blocks its siblings or its dependents: dependents
// are still attempted and simply see the failed node's outputs absent
// from context. The typical shape is a pure fan-out graph where every
// node runs concurrently.
func (e *Executor) runParallel(ctx context.Context) {
	for _, wave := range e.graph.ParallelBatches() {
		if ctx.Err() != nil {
			for _, id := range wave {
				e.markSkipped(ctx, id, "run aborted")
			}
			continue
		}

		var g errgroup.Group
		g.SetLimit(e.opts.Workers)
		for _, id := range wave {
			if e.state(id) != trace.StatusPending {
				continue
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					e.markSkipped(ctx, id, "run aborted")
					return nil
				}
				e.runNode(ctx, id)
				return nil
			})
		}
		// Node outcomes live in the trace, never in group errors.
		_ = g.Wait()
	}
}
