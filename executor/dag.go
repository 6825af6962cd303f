package executor

import (
	"context"
	"sync"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/trace"
)

// runDAG dispatches dependency waves with a strict barrier: wave k+1
// never starts until every wave-k node is terminal. Within a wave a
// bounded worker pool admits ready nodes in FIFO order by node
// identifier. Nodes whose dependencies failed are skipped without being
// attempted, unless the connecting edge is best-effort.
func (e *Executor) runDAG(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	for waveIdx, wave := range e.graph.ParallelBatches() {
		if ctx.Err() != nil {
			for _, id := range wave {
				e.markSkipped(ctx, id, "run aborted")
			}
			continue
		}

		// Admission queue; the wave slice is already sorted by identifier.
		queue := make(chan graph.NodeID, len(wave))
		queued := 0
		for _, id := range wave {
			if e.state(id) != trace.StatusPending {
				continue
			}
			// A strict barrier precedes this wave, so every ordering
			// predecessor is terminal by now.
			if _, blocked, blocker := e.depsOutcome(id); blocked {
				e.markSkipped(ctx, id, "upstream failure of '"+string(blocker)+"'")
				continue
			}
			queue <- id
			queued++
		}
		close(queue)
		if queued == 0 {
			continue
		}

		workers := e.opts.Workers
		if workers > queued {
			workers = queued
		}
		logger.Debug("dispatching wave", "wave", waveIdx, "nodes", queued, "workers", workers)

		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for id := range queue {
					if ctx.Err() != nil {
						e.markSkipped(ctx, id, "run aborted")
						continue
					}
					e.runNode(ctx, id)
				}
			}()
		}
		// The barrier: every node in this wave reaches a terminal state
		// before the next wave is considered.
		wg.Wait()
	}
}
