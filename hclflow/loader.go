// Package hclflow loads workflow definitions from HCL files.
//
// A definition looks like:
//
//	workflow "ingest" {
//	  template "llm" {
//	    ref     = "agent.generic"
//	    retry { max_attempts = 3 }
//	  }
//
//	  node "fetch" {
//	    ref     = "tool.fetch"
//	    outputs = ["document"]
//	  }
//
//	  node "summarize" {
//	    template = "llm"
//	    inputs   = ["document"]
//	    outputs  = ["summary"]
//	    defaults = { style = "terse" }
//	  }
//
//	  edge {
//	    from = "fetch"
//	    to   = "summarize"
//	    type = "data-flow"
//	  }
//	}
package hclflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/workflow"
)

type fileHCL struct {
	Workflows []workflowHCL `hcl:"workflow,block"`
}

type workflowHCL struct {
	Name      string        `hcl:"name,label"`
	Templates []templateHCL `hcl:"template,block"`
	Nodes     []nodeHCL     `hcl:"node,block"`
	Edges     []edgeHCL     `hcl:"edge,block"`
}

type templateHCL struct {
	Name     string         `hcl:"name,label"`
	Ref      string         `hcl:"ref,optional"`
	Inputs   []string       `hcl:"inputs,optional"`
	Outputs  []string       `hcl:"outputs,optional"`
	Defaults hcl.Expression `hcl:"defaults,optional"`
	Retry    *retryHCL      `hcl:"retry,block"`
}

type nodeHCL struct {
	ID       string         `hcl:"id,label"`
	Ref      string         `hcl:"ref,optional"`
	Template string         `hcl:"template,optional"`
	Inputs   []string       `hcl:"inputs,optional"`
	Outputs  []string       `hcl:"outputs,optional"`
	Defaults hcl.Expression `hcl:"defaults,optional"`
	Retry    *retryHCL      `hcl:"retry,block"`
}

type retryHCL struct {
	MaxAttempts       int     `hcl:"max_attempts,optional"`
	BackoffBase       string  `hcl:"backoff_base,optional"`
	BackoffMultiplier float64 `hcl:"backoff_multiplier,optional"`
	Timeout           string  `hcl:"timeout,optional"`
}

type edgeHCL struct {
	From       string `hcl:"from"`
	To         string `hcl:"to"`
	Type       string `hcl:"type,optional"`
	BestEffort bool   `hcl:"best_effort,optional"`
	When       string `hcl:"when,optional"`
}

// Loader implements workflow.Loader for HCL sources.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates an HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load parses the file at path. A file must contain exactly one
// workflow block.
func (l *Loader) Load(ctx context.Context, path string) (*workflow.Workflow, error) {
	ctxlog.FromContext(ctx).Debug("loading HCL workflow", "path", path)
	file, diags := l.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclflow: parse %s: %w", path, diags)
	}
	return decodeFile(file.Body, path)
}

// LoadBytes parses an in-memory HCL document. The filename is used only
// for diagnostics.
func (l *Loader) LoadBytes(ctx context.Context, src []byte, filename string) (*workflow.Workflow, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclflow: parse %s: %w", filename, diags)
	}
	return decodeFile(file.Body, filename)
}

func decodeFile(body hcl.Body, name string) (*workflow.Workflow, error) {
	var root fileHCL
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("hclflow: decode %s: %w", name, diags)
	}
	if len(root.Workflows) != 1 {
		return nil, fmt.Errorf("hclflow: %s must contain exactly one workflow block, found %d",
			name, len(root.Workflows))
	}
	return translate(&root.Workflows[0])
}

// translate lowers the HCL shapes into the format-agnostic model.
func translate(src *workflowHCL) (*workflow.Workflow, error) {
	w := &workflow.Workflow{Name: src.Name}

	for _, t := range src.Templates {
		defaults, err := decodeDefaults(t.Defaults)
		if err != nil {
			return nil, fmt.Errorf("hclflow: template %q: %w", t.Name, err)
		}
		pol, err := translateRetry(t.Retry)
		if err != nil {
			return nil, fmt.Errorf("hclflow: template %q: %w", t.Name, err)
		}
		w.Templates = append(w.Templates, workflow.Template{
			Name:     t.Name,
			Ref:      t.Ref,
			Inputs:   t.Inputs,
			Outputs:  t.Outputs,
			Defaults: defaults,
			Policy:   pol,
		})
	}

	for _, n := range src.Nodes {
		defaults, err := decodeDefaults(n.Defaults)
		if err != nil {
			return nil, fmt.Errorf("hclflow: node %q: %w", n.ID, err)
		}
		pol, err := translateRetry(n.Retry)
		if err != nil {
			return nil, fmt.Errorf("hclflow: node %q: %w", n.ID, err)
		}
		w.Nodes = append(w.Nodes, workflow.NodeSpec{
			ID:       n.ID,
			Ref:      n.Ref,
			Template: n.Template,
			Inputs:   n.Inputs,
			Outputs:  n.Outputs,
			Defaults: defaults,
			Policy:   pol,
		})
	}

	for _, e := range src.Edges {
		w.Edges = append(w.Edges, workflow.EdgeSpec{
			From:       e.From,
			To:         e.To,
			Type:       e.Type,
			BestEffort: e.BestEffort,
			When:       e.When,
		})
	}

	return w, nil
}

func translateRetry(r *retryHCL) (*workflow.PolicySpec, error) {
	if r == nil {
		return nil, nil
	}
	spec := &workflow.PolicySpec{
		MaxAttempts:       r.MaxAttempts,
		BackoffMultiplier: r.BackoffMultiplier,
	}
	var err error
	if spec.BackoffBase, err = parseDuration(r.BackoffBase); err != nil {
		return nil, fmt.Errorf("backoff_base: %w", err)
	}
	if spec.Timeout, err = parseDuration(r.Timeout); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}
	return spec, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
