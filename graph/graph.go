// Package graph models an orchestration workflow as nodes connected by
// typed directed edges and answers structural questions about it: cycle
// detection, deterministic topological ordering, parallel batch
// partitioning, and critical path computation.
//
// A Graph is immutable after Build and is safe for unsynchronized
// concurrent reads. It performs no I/O and knows nothing about how nodes
// are executed.
package graph

import (
	"fmt"
	"sort"

	"github.com/vk/flowgridgo/policy"
)

// NodeID uniquely identifies a node within one graph.
type NodeID string

// EdgeType classifies the relation an edge expresses between two nodes.
type EdgeType int

const (
	// Dependency means the source must finish before the target starts.
	Dependency EdgeType = iota
	// DataFlow means the source produces a value the target consumes.
	// For scheduling purposes it constrains order exactly like Dependency.
	DataFlow
	// Trigger conditionally activates the target when the source succeeds
	// and the edge predicate holds. Evaluated only by the event-driven
	// strategy; it never constrains order for the other strategies.
	Trigger
)

// Ordering reports whether the edge type constrains execution order.
func (t EdgeType) Ordering() bool {
	return t == Dependency || t == DataFlow
}

func (t EdgeType) String() string {
	switch t {
	case Dependency:
		return "dependency"
	case DataFlow:
		return "data-flow"
	case Trigger:
		return "trigger"
	default:
		return fmt.Sprintf("edge-type(%d)", int(t))
	}
}

// Node is one schedulable unit of work. The Ref is an opaque handle
// resolved by the injected runner; the graph never interprets it.
type Node struct {
	ID NodeID
	// Ref names the unit of work this node executes.
	Ref string
	// Inputs are the context keys read at dispatch time.
	Inputs []string
	// Outputs are the context keys the node's results are merged under.
	Outputs []string
	// Defaults supply values for inputs absent from the context store.
	// An input with neither a committed value nor a default fails the
	// node without invoking the unit of work.
	Defaults map[string]any
	// Policy governs retries, backoff and the per-attempt timeout.
	Policy policy.Policy
}

// Edge is a typed directed relation between two node identifiers.
type Edge struct {
	From NodeID
	To   NodeID
	Type EdgeType
	// BestEffort exempts the target from being skipped when the source
	// fails; the target then runs with the source's outputs absent.
	BestEffort bool
	// When is a predicate source evaluated against a context snapshot.
	// Only meaningful on Trigger edges; empty means "always".
	When string
}

// Graph is a validated, immutable workflow structure.
type Graph struct {
	nodes map[NodeID]*Node
	// declared preserves declaration order for tie-breaking.
	declared []NodeID
	edges    []Edge

	// deps and dependents index the ordering sub-graph only.
	deps       map[NodeID]map[NodeID]Edge
	dependents map[NodeID]map[NodeID]Edge
	// triggers indexes Trigger edges by target node.
	triggers map[NodeID][]Edge
	// depth is the length of the longest ordering chain from any source.
	depth map[NodeID]int
}

// Build validates the node and edge sets and returns an immutable Graph.
// It fails with a *BuildError when an identifier is duplicated or an edge
// endpoint is undeclared, and with a *CycleError when the ordering
// sub-graph (dependency and data-flow edges) contains a cycle. Trigger
// edges may form cycles.
func Build(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[NodeID]*Node, len(nodes)),
		declared:   make([]NodeID, 0, len(nodes)),
		edges:      append([]Edge(nil), edges...),
		deps:       make(map[NodeID]map[NodeID]Edge, len(nodes)),
		dependents: make(map[NodeID]map[NodeID]Edge, len(nodes)),
		triggers:   make(map[NodeID][]Edge),
		depth:      make(map[NodeID]int, len(nodes)),
	}

	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, &BuildError{Reason: "node with empty identifier"}
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, &BuildError{Node: n.ID, Reason: "duplicate node identifier"}
		}
		n.Policy = n.Policy.Normalize()
		g.nodes[n.ID] = &n
		g.declared = append(g.declared, n.ID)
		g.deps[n.ID] = make(map[NodeID]Edge)
		g.dependents[n.ID] = make(map[NodeID]Edge)
	}

	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, &BuildError{Node: e.From, Reason: "edge references undeclared node"}
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, &BuildError{Node: e.To, Reason: "edge references undeclared node"}
		}
		if e.From == e.To {
			return nil, &BuildError{Node: e.From, Reason: "self-referential edge"}
		}
		if e.Type.Ordering() {
			g.deps[e.To][e.From] = e
			g.dependents[e.From][e.To] = e
		} else {
			g.triggers[e.To] = append(g.triggers[e.To], e)
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	g.computeDepths()

	return g, nil
}

// Nodes returns all node identifiers in declaration order.
func (g *Graph) Nodes() []NodeID {
	return append([]NodeID(nil), g.declared...)
}

// Node returns the node with the given identifier.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.declared) }

// Edges returns every declared edge, trigger edges included.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Dependencies returns the ordering predecessors of id, ascending.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	return sortedKeys(g.deps[id])
}

// Dependents returns the ordering successors of id, ascending.
func (g *Graph) Dependents(id NodeID) []NodeID {
	return sortedKeys(g.dependents[id])
}

// OrderingEdge returns the ordering edge from one node to another.
func (g *Graph) OrderingEdge(from, to NodeID) (Edge, bool) {
	e, ok := g.deps[to][from]
	return e, ok
}

// TriggerEdges returns the trigger edges whose target is id.
func (g *Graph) TriggerEdges(id NodeID) []Edge {
	return append([]Edge(nil), g.triggers[id]...)
}

// HasTriggers reports whether id is the target of any trigger edge.
func (g *Graph) HasTriggers(id NodeID) bool {
	return len(g.triggers[id]) > 0
}

// Depth returns the length of the longest ordering chain from any source
// to id. Sources have depth 0.
func (g *Graph) Depth(id NodeID) int { return g.depth[id] }

// node colors for cycle detection.
type color uint8

const (
	white color = iota
	grey
	black
)

// detectCycles runs a three-color depth-first search over the ordering
// sub-graph, reconstructing the offending path when a back edge is found.
func (g *Graph) detectCycles() error {
	marks := make(map[NodeID]color, len(g.nodes))

	var stack []NodeID
	var visit func(id NodeID) *CycleError
	visit = func(id NodeID) *CycleError {
		marks[id] = grey
		stack = append(stack, id)
		for _, next := range sortedKeys(g.dependents[id]) {
			switch marks[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case grey:
				// Back edge: the cycle is the stack suffix from next.
				var path []NodeID
				for i, n := range stack {
					if n == next {
						path = append(path, stack[i:]...)
						break
					}
				}
				return &CycleError{Path: append(path, next)}
			}
		}
		stack = stack[:len(stack)-1]
		marks[id] = black
		return nil
	}

	for _, id := range g.declared {
		if marks[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeDepths fills g.depth; callable only once the ordering sub-graph
// is known acyclic.
func (g *Graph) computeDepths() {
	var resolve func(id NodeID) int
	resolve = func(id NodeID) int {
		if d, ok := g.depth[id]; ok {
			return d
		}
		d := 0
		for pred := range g.deps[id] {
			if pd := resolve(pred) + 1; pd > d {
				d = pd
			}
		}
		g.depth[id] = d
		return d
	}
	// depth map starts empty; a stored zero must be distinguishable from
	// "not yet computed", so clear and rebuild in one pass.
	g.depth = make(map[NodeID]int, len(g.nodes))
	for _, id := range g.declared {
		resolve(id)
	}
}

func sortedKeys(m map[NodeID]Edge) []NodeID {
	out := make([]NodeID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
