package executor

import (
	"context"
	"sort"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/trace"
)

// runEventDriven is a continuous dispatcher. A node is eligible when all
// of its ordering predecessors have succeeded (AND-combined) and, if it
// is the target of trigger edges, at least one of them has fired
// (OR-combined): its source succeeded and its predicate holds against a
// fresh context snapshot. Eligibility is re-evaluated after every node
// completion, since completions commit context writes that predicates
// may observe.
//
// When nothing is running and nothing is eligible, the remaining pending
// nodes can never activate; they are recorded as skipped and the run
// ends.
func (e *Executor) runEventDriven(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	ids := e.graph.Nodes()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	completions := make(chan graph.NodeID)
	running := 0
	dispatched := make(map[graph.NodeID]bool, len(ids))

	for {
		if ctx.Err() == nil {
			for _, id := range ids {
				if running >= e.opts.Workers {
					break
				}
				if dispatched[id] || e.state(id) != trace.StatusPending {
					continue
				}
				ready, blocked, blocker := e.eligible(ctx, id)
				if blocked {
					e.markSkipped(ctx, id, "upstream failure of '"+string(blocker)+"'")
					continue
				}
				if !ready {
					continue
				}
				dispatched[id] = true
				running++
				logger.Debug("dispatching node", "node", string(id), "running", running)
				go func(id graph.NodeID) {
					e.runNode(ctx, id)
					completions <- id
				}(id)
			}
		}

		if running == 0 {
			reason := "no trigger fired"
			if ctx.Err() != nil {
				reason = "run aborted"
			}
			for _, id := range ids {
				if e.state(id) == trace.StatusPending {
					e.markSkipped(ctx, id, reason)
				}
			}
			return
		}

		id := <-completions
		running--
		logger.Debug("node completed", "node", string(id), "status", string(e.state(id)))
	}
}

// eligible decides whether a pending node can be dispatched now. blocked
// means it never can be: an ordering predecessor failed on a
// non-best-effort edge, or every trigger source is terminal without any
// edge having fired while nothing else is running to change that.
func (e *Executor) eligible(ctx context.Context, id graph.NodeID) (ready, blocked bool, blocker graph.NodeID) {
	terminal, depBlocked, depBlocker := e.depsOutcome(id)
	if depBlocked {
		return false, true, depBlocker
	}
	if !terminal {
		return false, false, ""
	}

	triggers := e.triggers[id]
	if len(triggers) == 0 {
		return true, false, ""
	}

	// Predicates read the full store snapshot at trigger-check time.
	snapshot := e.store.Snapshot()
	for _, ct := range triggers {
		if e.triggerFired(ctx, ct, snapshot) {
			return true, false, ""
		}
	}
	return false, false, ""
}
