// Package yamlflow loads workflow definitions from YAML documents,
// either from disk or from embedded byte slices.
package yamlflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/workflow"
)

type fileYAML struct {
	Name      string         `yaml:"name"`
	Templates []templateYAML `yaml:"templates"`
	Nodes     []nodeYAML     `yaml:"nodes"`
	Edges     []edgeYAML     `yaml:"edges"`
}

type templateYAML struct {
	Name     string         `yaml:"name"`
	Ref      string         `yaml:"ref"`
	Inputs   []string       `yaml:"inputs"`
	Outputs  []string       `yaml:"outputs"`
	Defaults map[string]any `yaml:"defaults"`
	Retry    *retryYAML     `yaml:"retry"`
}

type nodeYAML struct {
	ID       string         `yaml:"id"`
	Ref      string         `yaml:"ref"`
	Template string         `yaml:"template"`
	Inputs   []string       `yaml:"inputs"`
	Outputs  []string       `yaml:"outputs"`
	Defaults map[string]any `yaml:"defaults"`
	Retry    *retryYAML     `yaml:"retry"`
}

type retryYAML struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffBase       string  `yaml:"backoff_base"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	Timeout           string  `yaml:"timeout"`
}

type edgeYAML struct {
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	Type       string `yaml:"type"`
	BestEffort bool   `yaml:"best_effort"`
	When       string `yaml:"when"`
}

// Loader implements workflow.Loader for YAML sources.
type Loader struct{}

// NewLoader creates a YAML workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and translates the YAML workflow at path.
func (l *Loader) Load(ctx context.Context, path string) (*workflow.Workflow, error) {
	ctxlog.FromContext(ctx).Debug("loading YAML workflow", "path", path)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlflow: read %s: %w", path, err)
	}
	w, err := LoadBytes(src)
	if err != nil {
		return nil, fmt.Errorf("yamlflow: %s: %w", path, err)
	}
	return w, nil
}

// LoadBytes translates an in-memory YAML document, typically embedded
// with go:embed.
func LoadBytes(src []byte) (*workflow.Workflow, error) {
	var root fileYAML
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}

	w := &workflow.Workflow{Name: root.Name}
	for _, t := range root.Templates {
		pol, err := translateRetry(t.Retry)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		w.Templates = append(w.Templates, workflow.Template{
			Name:     t.Name,
			Ref:      t.Ref,
			Inputs:   t.Inputs,
			Outputs:  t.Outputs,
			Defaults: t.Defaults,
			Policy:   pol,
		})
	}
	for _, n := range root.Nodes {
		pol, err := translateRetry(n.Retry)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		w.Nodes = append(w.Nodes, workflow.NodeSpec{
			ID:       n.ID,
			Ref:      n.Ref,
			Template: n.Template,
			Inputs:   n.Inputs,
			Outputs:  n.Outputs,
			Defaults: n.Defaults,
			Policy:   pol,
		})
	}
	for _, e := range root.Edges {
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

func translateRetry(r *retryYAML) (*workflow.PolicySpec, error) {
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
