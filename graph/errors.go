package graph

import (
	"fmt"
	"strings"
)

// BuildError reports a malformed workflow definition: a duplicate node
// identifier, an empty identifier, or an edge endpoint that references an
// undeclared node. Nothing executes when Build fails.
type BuildError struct {
	Node   NodeID
	Reason string
}

func (e *BuildError) Error() string {
	if e.Node == "" {
		return "graph: " + e.Reason
	}
	return fmt.Sprintf("graph: %s: %q", e.Reason, string(e.Node))
}

// CycleError reports a cycle among ordering edges. Path holds the nodes
// along the cycle, ending on a repeat of its first element.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return "graph: cycle detected: " + strings.Join(parts, " -> ")
}
