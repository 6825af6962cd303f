package graph

import (
	"sort"
	"time"
)

// TopologicalOrder returns a deterministic linear extension of the partial
// order induced by ordering edges: nodes sorted by dependency depth, ties
// broken by node identifier ascending. This is exactly the order a
// single-worker wave-by-wave dispatch visits nodes, so a DAG run with
// concurrency limit 1 reproduces it.
func (g *Graph) TopologicalOrder() []NodeID {
	out := append([]NodeID(nil), g.declared...)
	sort.Slice(out, func(i, j int) bool {
		di, dj := g.depth[out[i]], g.depth[out[j]]
		if di != dj {
			return di < dj
		}
		return out[i] < out[j]
	})
	return out
}

// ParallelBatches partitions the nodes into the minimal number of waves
// such that every node's ordering dependencies lie in strictly earlier
// waves. Wave k holds exactly the nodes whose longest dependency chain
// from any source has length k. Nodes within a wave are sorted ascending
// so dispatch admission is reproducible.
func (g *Graph) ParallelBatches() [][]NodeID {
	maxDepth := -1
	for _, id := range g.declared {
		if d := g.depth[id]; d > maxDepth {
			maxDepth = d
		}
	}
	if maxDepth < 0 {
		return nil
	}
	waves := make([][]NodeID, maxDepth+1)
	for _, id := range g.declared {
		d := g.depth[id]
		waves[d] = append(waves[d], id)
	}
	for _, wave := range waves {
		sort.Slice(wave, func(i, j int) bool { return wave[i] < wave[j] })
	}
	return waves
}

// CriticalPath returns the longest weighted path through the ordering
// sub-graph from any source to any sink, using the per-node weight
// function (estimated or observed durations). Ties are broken in favor of
// the earliest-declared node. The result is a scheduling diagnostic, not
// a correctness input.
func (g *Graph) CriticalPath(weight func(NodeID) time.Duration) []NodeID {
	if len(g.declared) == 0 {
		return nil
	}
	if weight == nil {
		weight = func(NodeID) time.Duration { return time.Second }
	}

	declIndex := make(map[NodeID]int, len(g.declared))
	for i, id := range g.declared {
		declIndex[id] = i
	}

	// dist is the weight of the heaviest path ending at a node; prev
	// records the predecessor realizing it.
	dist := make(map[NodeID]time.Duration, len(g.declared))
	prev := make(map[NodeID]NodeID, len(g.declared))

	for _, id := range g.TopologicalOrder() {
		best := time.Duration(-1)
		var bestPred NodeID
		hasPred := false
		for _, pred := range g.Dependencies(id) {
			d := dist[pred]
			if d > best || (d == best && hasPred && declIndex[pred] < declIndex[bestPred]) {
				best = d
				bestPred = pred
				hasPred = true
			}
		}
		if hasPred {
			dist[id] = best + weight(id)
			prev[id] = bestPred
		} else {
			dist[id] = weight(id)
		}
	}

	// Pick the heaviest sink, earliest-declared on ties.
	var end NodeID
	endSet := false
	for _, id := range g.declared {
		if len(g.dependents[id]) > 0 {
			continue
		}
		if !endSet || dist[id] > dist[end] {
			end = id
			endSet = true
		}
	}
	if !endSet {
		return nil
	}

	var path []NodeID
	for id := end; ; {
		path = append([]NodeID{id}, path...)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	return path
}
