// Package cmdrunner provides a reference unit-of-work runner that
// executes a node's executor reference as an operating-system command.
// Inputs are written to the command's stdin as a JSON object; declared
// outputs are read back from its stdout, also as a JSON object. An empty
// stdout means the node produced no outputs.
//
// The engine never constructs a runner itself; this package exists so
// the CLI can run workflows without a host program.
package cmdrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/workflow"
)

// Runner maps node identifiers to command lines and executes them.
type Runner struct {
	commands map[graph.NodeID][]string
	dir      string
	env      []string
}

// New creates an empty runner. dir and env apply to every command; zero
// values inherit the parent process.
func New(dir string, env []string) *Runner {
	return &Runner{
		commands: make(map[graph.NodeID][]string),
		dir:      dir,
		env:      env,
	}
}

// Register associates a node identifier with a command line.
func (r *Runner) Register(id graph.NodeID, argv []string) {
	r.commands[id] = append([]string(nil), argv...)
}

// FromWorkflow builds a runner whose command lines are the node refs of
// the given workflow, split on whitespace.
func FromWorkflow(w *workflow.Workflow) (*Runner, error) {
	r := New("", nil)
	templates := make(map[string]workflow.Template, len(w.Templates))
	for _, t := range w.Templates {
		templates[t.Name] = t
	}
	for _, spec := range w.Nodes {
		if spec.Template != "" {
			if t, ok := templates[spec.Template]; ok {
				spec = workflow.Instantiate(t, spec)
			}
		}
		argv := strings.Fields(spec.Ref)
		if len(argv) == 0 {
			return nil, fmt.Errorf("cmdrunner: node %q has no executor reference", spec.ID)
		}
		r.Register(graph.NodeID(spec.ID), argv)
	}
	return r, nil
}

// Execute implements executor.Runner. Cancellation kills the command via
// the context; a non-zero exit surfaces as an error carrying the stderr
// tail.
func (r *Runner) Execute(ctx context.Context, id graph.NodeID, inputs map[string]any) (map[string]any, error) {
	argv, ok := r.commands[id]
	if !ok {
		return nil, fmt.Errorf("cmdrunner: no command registered for node %q", string(id))
	}

	stdin, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("cmdrunner: encode inputs for %q: %w", string(id), err)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("executing command", "node", string(id), "command", argv[0])

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.dir
	cmd.Env = r.env
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cmdrunner: node %q: %w: %s", string(id), err, tail(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, nil
	}
	var outputs map[string]any
	if err := json.Unmarshal([]byte(out), &outputs); err != nil {
		return nil, fmt.Errorf("cmdrunner: node %q: parse outputs: %w", string(id), err)
	}
	return outputs, nil
}

// tail returns the last few lines of command stderr for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
