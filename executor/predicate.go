package executor

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/trace"
)

// compiledTrigger pairs a trigger edge with its compiled predicate. A nil
// program means the edge fires unconditionally once its source succeeds.
type compiledTrigger struct {
	edge graph.Edge
	prog *vm.Program
}

// compileTriggers compiles every trigger-edge predicate up front so a
// malformed expression fails run construction instead of surfacing
// mid-run. Predicates may reference any context key, not only keys the
// triggering node writes: evaluation reads a full store snapshot at
// trigger-check time.
func compileTriggers(g *graph.Graph) (map[graph.NodeID][]compiledTrigger, error) {
	out := make(map[graph.NodeID][]compiledTrigger)
	for _, id := range g.Nodes() {
		for _, edge := range g.TriggerEdges(id) {
			ct := compiledTrigger{edge: edge}
			if edge.When != "" {
				prog, err := expr.Compile(edge.When,
					expr.Env(map[string]any{}),
					expr.AllowUndefinedVariables(),
					expr.AsBool(),
				)
				if err != nil {
					return nil, fmt.Errorf("executor: trigger %s -> %s: predicate: %w",
						string(edge.From), string(edge.To), err)
				}
				ct.prog = prog
			}
			out[id] = append(out[id], ct)
		}
	}
	return out, nil
}

// triggerFired reports whether one trigger edge activates its target:
// the source has succeeded and the predicate evaluates true against the
// given context snapshot. Evaluation errors count as false.
func (e *Executor) triggerFired(ctx context.Context, ct compiledTrigger, snapshot map[string]any) bool {
	if e.state(ct.edge.From) != trace.StatusSucceeded {
		return false
	}
	if ct.prog == nil {
		return true
	}
	v, err := expr.Run(ct.prog, snapshot)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("trigger predicate evaluation failed",
			"from", string(ct.edge.From), "to", string(ct.edge.To), "error", err)
		return false
	}
	fired, ok := v.(bool)
	return ok && fired
}
