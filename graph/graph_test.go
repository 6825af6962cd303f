package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodesOf(ids ...NodeID) []Node {
	out := make([]Node, len(ids))
	for i, id := range ids {
		out[i] = Node{ID: id}
	}
	return out
}

func dep(from, to NodeID) Edge {
	return Edge{From: from, To: to, Type: Dependency}
}

func TestBuild(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		g, err := Build(nodesOf("a", "b", "c"), []Edge{dep("a", "b"), dep("b", "c")})
		require.NoError(t, err)
		assert.Equal(t, 3, g.Len())
		assert.Equal(t, []NodeID{"a", "b", "c"}, g.Nodes())
		assert.Equal(t, []NodeID{"b"}, g.Dependencies("c"))
		assert.Equal(t, []NodeID{"b"}, g.Dependents("a"))
	})

	t.Run("empty identifier", func(t *testing.T) {
		_, err := Build([]Node{{ID: ""}}, nil)
		var be *BuildError
		require.ErrorAs(t, err, &be)
		assert.Contains(t, be.Error(), "empty identifier")
	})

	t.Run("duplicate identifier", func(t *testing.T) {
		_, err := Build(nodesOf("a", "a"), nil)
		var be *BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, NodeID("a"), be.Node)
	})

	t.Run("edge references undeclared node", func(t *testing.T) {
		_, err := Build(nodesOf("a"), []Edge{dep("a", "ghost")})
		var be *BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, NodeID("ghost"), be.Node)
	})

	t.Run("self-referential edge", func(t *testing.T) {
		_, err := Build(nodesOf("a"), []Edge{dep("a", "a")})
		var be *BuildError
		require.ErrorAs(t, err, &be)
		assert.Contains(t, be.Error(), "self-referential")
	})

	t.Run("normalizes node policies", func(t *testing.T) {
		g, err := Build(nodesOf("a"), nil)
		require.NoError(t, err)
		n, ok := g.Node("a")
		require.True(t, ok)
		assert.Equal(t, 1, n.Policy.MaxAttempts)
		assert.Equal(t, 100*time.Millisecond, n.Policy.BackoffBase)
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("two-node cycle", func(t *testing.T) {
		_, err := Build(nodesOf("a", "b"), []Edge{dep("a", "b"), dep("b", "a")})
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "graph: cycle detected: a -> b -> a", ce.Error())
	})

	t.Run("cycle deep in a larger graph", func(t *testing.T) {
		_, err := Build(nodesOf("a", "b", "c", "d"),
			[]Edge{dep("a", "b"), dep("b", "c"), dep("c", "d"), dep("d", "b")})
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		require.NotEmpty(t, ce.Path)
		assert.Equal(t, ce.Path[0], ce.Path[len(ce.Path)-1])
	})

	t.Run("trigger edges may form cycles", func(t *testing.T) {
		_, err := Build(nodesOf("a", "b"), []Edge{
			{From: "a", To: "b", Type: Trigger},
			{From: "b", To: "a", Type: Trigger},
		})
		assert.NoError(t, err)
	})

	t.Run("diamond is acyclic", func(t *testing.T) {
		_, err := Build(nodesOf("a", "b", "c", "d"),
			[]Edge{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d")})
		assert.NoError(t, err)
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("respects every ordering edge", func(t *testing.T) {
		edges := []Edge{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d"), dep("d", "e")}
		g, err := Build(nodesOf("e", "d", "c", "b", "a"), edges)
		require.NoError(t, err)

		order := g.TopologicalOrder()
		pos := make(map[NodeID]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		for _, e := range edges {
			assert.Less(t, pos[e.From], pos[e.To], "%s must precede %s", e.From, e.To)
		}
	})

	t.Run("deterministic tie-break by identifier", func(t *testing.T) {
		g, err := Build(nodesOf("c", "a", "b"), nil)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"a", "b", "c"}, g.TopologicalOrder())
	})

	t.Run("ignores trigger edges", func(t *testing.T) {
		g, err := Build(nodesOf("a", "b"), []Edge{{From: "b", To: "a", Type: Trigger}})
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"a", "b"}, g.TopologicalOrder())
	})
}

func TestParallelBatches(t *testing.T) {
	t.Run("diamond", func(t *testing.T) {
		g, err := Build(nodesOf("a", "b", "c", "d"),
			[]Edge{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d")})
		require.NoError(t, err)
		assert.Equal(t, [][]NodeID{{"a"}, {"b", "c"}, {"d"}}, g.ParallelBatches())
	})

	t.Run("independent nodes share one wave", func(t *testing.T) {
		g, err := Build(nodesOf("c", "a", "b"), nil)
		require.NoError(t, err)
		assert.Equal(t, [][]NodeID{{"a", "b", "c"}}, g.ParallelBatches())
	})

	t.Run("every dependency lies in an earlier wave", func(t *testing.T) {
		edges := []Edge{dep("a", "c"), dep("b", "c"), dep("c", "d"), dep("a", "d")}
		g, err := Build(nodesOf("a", "b", "c", "d"), edges)
		require.NoError(t, err)

		waveOf := make(map[NodeID]int)
		for i, wave := range g.ParallelBatches() {
			for _, id := range wave {
				waveOf[id] = i
			}
		}
		for _, e := range edges {
			assert.Less(t, waveOf[e.From], waveOf[e.To])
		}
	})

	t.Run("empty graph", func(t *testing.T) {
		g, err := Build(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, g.ParallelBatches())
	})
}

func TestCriticalPath(t *testing.T) {
	t.Run("uniform weights pick the longest chain", func(t *testing.T) {
		g, err := Build(nodesOf("a", "b", "c", "d"),
			[]Edge{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d")})
		require.NoError(t, err)
		// b and c tie; b is declared first.
		assert.Equal(t, []NodeID{"a", "b", "d"}, g.CriticalPath(nil))
	})

	t.Run("weights shift the path", func(t *testing.T) {
		g, err := Build(nodesOf("a", "b", "c", "d"),
			[]Edge{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d")})
		require.NoError(t, err)
		weight := func(id NodeID) time.Duration {
			if id == "c" {
				return 10 * time.Second
			}
			return time.Second
		}
		assert.Equal(t, []NodeID{"a", "c", "d"}, g.CriticalPath(weight))
	})

	t.Run("single node", func(t *testing.T) {
		g, err := Build(nodesOf("only"), nil)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"only"}, g.CriticalPath(nil))
	})

	t.Run("empty graph", func(t *testing.T) {
		g, err := Build(nil, nil)
		require.NoError(t, err)
		assert.Nil(t, g.CriticalPath(nil))
	})
}

func TestDepth(t *testing.T) {
	g, err := Build(nodesOf("a", "b", "c", "d"),
		[]Edge{dep("a", "b"), dep("b", "c"), dep("a", "d")})
	require.NoError(t, err)
	assert.Equal(t, 0, g.Depth("a"))
	assert.Equal(t, 1, g.Depth("b"))
	assert.Equal(t, 2, g.Depth("c"))
	assert.Equal(t, 1, g.Depth("d"))
}
