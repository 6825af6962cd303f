package cmdrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowgridgo/graph"
	"github.com/vk/flowgridgo/workflow"
)

func TestExecute(t *testing.T) {
	t.Run("outputs parsed from stdout", func(t *testing.T) {
		r := New("", nil)
		r.Register("a", []string{"sh", "-c", `echo '{"x": 42}'`})

		out, err := r.Execute(context.Background(), "a", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"x": float64(42)}, out)
	})

	t.Run("inputs arrive on stdin", func(t *testing.T) {
		r := New("", nil)
		// Echo stdin back as the outputs object.
		r.Register("a", []string{"sh", "-c", "cat"})

		out, err := r.Execute(context.Background(), "a", map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": "v"}, out)
	})

	t.Run("empty stdout means no outputs", func(t *testing.T) {
		r := New("", nil)
		r.Register("a", []string{"true"})

		out, err := r.Execute(context.Background(), "a", nil)
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("non-zero exit carries the stderr tail", func(t *testing.T) {
		r := New("", nil)
		r.Register("a", []string{"sh", "-c", "echo disk full >&2; exit 3"})

		_, err := r.Execute(context.Background(), "a", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Contains(t, err.Error(), `node "a"`)
	})

	t.Run("unparseable stdout", func(t *testing.T) {
		r := New("", nil)
		r.Register("a", []string{"echo", "not json"})

		_, err := r.Execute(context.Background(), "a", nil)
		assert.ErrorContains(t, err, "parse outputs")
	})

	t.Run("unregistered node", func(t *testing.T) {
		r := New("", nil)
		_, err := r.Execute(context.Background(), "ghost", nil)
		assert.ErrorContains(t, err, "no command registered")
	})

	t.Run("cancellation kills the command", func(t *testing.T) {
		r := New("", nil)
		r.Register("a", []string{"sleep", "30"})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := r.Execute(ctx, "a", nil)
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestFromWorkflow(t *testing.T) {
	t.Run("refs become command lines, templates apply", func(t *testing.T) {
		w := &workflow.Workflow{
			Templates: []workflow.Template{{Name: "shell", Ref: "sh -c true"}},
			Nodes: []workflow.NodeSpec{
				{ID: "a", Ref: "echo hello"},
				{ID: "b", Template: "shell"},
			},
		}
		r, err := FromWorkflow(w)
		require.NoError(t, err)
		assert.Equal(t, []string{"echo", "hello"}, r.commands[graph.NodeID("a")])
		assert.Equal(t, []string{"sh", "-c", "true"}, r.commands[graph.NodeID("b")])
	})

	t.Run("node without a ref", func(t *testing.T) {
		w := &workflow.Workflow{Nodes: []workflow.NodeSpec{{ID: "a"}}}
		_, err := FromWorkflow(w)
		assert.ErrorContains(t, err, "no executor reference")
	})
}

func TestTail(t *testing.T) {
	assert.Equal(t, "b\nc\nd\ne\nf", tail("a\nb\nc\nd\ne\nf\n"))
	assert.Equal(t, "short", tail("short"))
}
