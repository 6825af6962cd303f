// Package workflow defines the format-agnostic declarative model of an
// orchestration workflow: node specs, edge specs, and node templates. A
// concrete encoding (HCL, YAML, or an in-memory structure built by the
// host) is translated into this model first, and the model is lowered
// into a validated graph exactly once per run. Invalid shapes are
// rejected at construction, never at dispatch time.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/policy"
)

// Edge type names accepted in definitions.
const (
	EdgeDependency = "dependency"
	EdgeDataFlow   = "data-flow"
	EdgeTrigger    = "trigger"
)

// PolicySpec is the declarative form of a node's failure policy.
type PolicySpec struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration
}

// Policy converts the spec into an engine policy.
func (p *PolicySpec) Policy() policy.Policy {
	if p == nil {
		return policy.Policy{}.Normalize()
	}
	return policy.Policy{
		MaxAttempts:       p.MaxAttempts,
		BackoffBase:       p.BackoffBase,
		BackoffMultiplier: p.BackoffMultiplier,
		Timeout:           p.Timeout,
	}.Normalize()
}

// NodeSpec declares one unit of work. Template optionally names a
// Template whose fields fill any the spec leaves empty.
type NodeSpec struct {
	ID       string
	Ref      string
	Template string
	Inputs   []string
	Outputs  []string
	Defaults map[string]any
	Policy   *PolicySpec
}

// Template is a partially filled node spec. Instantiation is a pure
// merge of template fields with caller-supplied overrides; there is no
// inheritance hierarchy behind it.
type Template struct {
	Name     string
	Ref      string
	Inputs   []string
	Outputs  []string
	Defaults map[string]any
	Policy   *PolicySpec
}

// Instantiate merges a template with an override spec. Override fields
// win whenever they are set; empty override fields fall back to the
// template. Defaults merge key-wise with override keys winning.
func Instantiate(t Template, override NodeSpec) NodeSpec {
	out := override
	if out.Ref == "" {
		out.Ref = t.Ref
	}
	if len(out.Inputs) == 0 {
		out.Inputs = append([]string(nil), t.Inputs...)
	}
	if len(out.Outputs) == 0 {
		out.Outputs = append([]string(nil), t.Outputs...)
	}
	if out.Policy == nil {
		out.Policy = t.Policy
	}
	if len(t.Defaults) > 0 {
		merged := make(map[string]any, len(t.Defaults)+len(out.Defaults))
		for k, v := range t.Defaults {
			merged[k] = v
		}
		for k, v := range out.Defaults {
			merged[k] = v
		}
		out.Defaults = merged
	}
	return out
}

// EdgeSpec declares a typed directed relation between two node ids. Type
// defaults to "dependency" when empty. When is a predicate source for
// trigger edges.
type EdgeSpec struct {
	From       string
	To         string
	Type       string
	BestEffort bool
	When       string
}

// Workflow is a complete declarative definition.
type Workflow struct {
	Name      string
	Templates []Template
	Nodes     []NodeSpec
	Edges     []EdgeSpec
}

// Loader loads a workflow definition from a format-specific source.
type Loader interface {
	Load(ctx context.Context, path string) (*Workflow, error)
}

// Graph lowers the definition into a validated immutable graph, applying
// templates and translating edge type names. All shape errors surface
// here, before anything executes.
func (w *Workflow) Graph() (*graph.Graph, error) {
	templates := make(map[string]Template, len(w.Templates))
	for _, t := range w.Templates {
		if _, dup := templates[t.Name]; dup {
			return nil, fmt.Errorf("workflow %q: duplicate template %q", w.Name, t.Name)
		}
		templates[t.Name] = t
	}

	nodes := make([]graph.Node, 0, len(w.Nodes))
	for _, spec := range w.Nodes {
		if spec.Template != "" {
			t, ok := templates[spec.Template]
			if !ok {
				return nil, fmt.Errorf("workflow %q: node %q references unknown template %q",
					w.Name, spec.ID, spec.Template)
			}
			spec = Instantiate(t, spec)
		}
		nodes = append(nodes, graph.Node{
			ID:       graph.NodeID(spec.ID),
			Ref:      spec.Ref,
			Inputs:   append([]string(nil), spec.Inputs...),
			Outputs:  append([]string(nil), spec.Outputs...),
			Defaults: spec.Defaults,
			Policy:   spec.Policy.Policy(),
		})
	}

	edges := make([]graph.Edge, 0, len(w.Edges))
	for _, spec := range w.Edges {
		t, err := parseEdgeType(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: edge %s -> %s: %w", w.Name, spec.From, spec.To, err)
		}
		edges = append(edges, graph.Edge{
			From:       graph.NodeID(spec.From),
			To:         graph.NodeID(spec.To),
			Type:       t,
			BestEffort: spec.BestEffort,
			When:       spec.When,
		})
	}

	return graph.Build(nodes, edges)
}

func parseEdgeType(name string) (graph.EdgeType, error) {
	switch name {
	case "", EdgeDependency:
		return graph.Dependency, nil
	case EdgeDataFlow:
		return graph.DataFlow, nil
	case EdgeTrigger:
		return graph.Trigger, nil
	default:
		return 0, fmt.Errorf("unknown edge type %q", name)
	}
}
