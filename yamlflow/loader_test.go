package yamlflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: pipeline
templates:
  - name: shell
    ref: sh -c true
    retry:
      max_attempts: 3
      backoff_base: 200ms
nodes:
  - id: fetch
    ref: tool.fetch
    outputs: [document]
    retry:
      max_attempts: 5
      timeout: 30s
  - id: summarize
    template: shell
    inputs: [document]
    outputs: [summary]
    defaults:
      style: terse
edges:
  - from: fetch
    to: summarize
    type: data-flow
  - from: fetch
    to: summarize
    type: trigger
    when: document != nil
    best_effort: true
`

func TestLoadBytes(t *testing.T) {
	w, err := LoadBytes([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "pipeline", w.Name)
	require.Len(t, w.Templates, 1)
	require.Len(t, w.Nodes, 2)
	require.Len(t, w.Edges, 2)

	require.NotNil(t, w.Templates[0].Policy)
	assert.Equal(t, 200*time.Millisecond, w.Templates[0].Policy.BackoffBase)

	fetch := w.Nodes[0]
	assert.Equal(t, "fetch", fetch.ID)
	require.NotNil(t, fetch.Policy)
	assert.Equal(t, 5, fetch.Policy.MaxAttempts)
	assert.Equal(t, 30*time.Second, fetch.Policy.Timeout)

	assert.Equal(t, map[string]any{"style": "terse"}, w.Nodes[1].Defaults)

	trigger := w.Edges[1]
	assert.Equal(t, "trigger", trigger.Type)
	assert.Equal(t, "document != nil", trigger.When)
	assert.True(t, trigger.BestEffort)
}

func TestLoadBytesErrors(t *testing.T) {
	t.Run("malformed document", func(t *testing.T) {
		_, err := LoadBytes([]byte("nodes: [\n"))
		assert.ErrorContains(t, err, "unmarshal workflow")
	})

	t.Run("bad duration", func(t *testing.T) {
		src := `
name: x
nodes:
  - id: a
    retry:
      backoff_base: soon
`
		_, err := LoadBytes([]byte(src))
		assert.ErrorContains(t, err, "backoff_base")
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	w, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", w.Name)

	_, err = NewLoader().Load(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadedWorkflowLowers(t *testing.T) {
	w, err := LoadBytes([]byte(sampleYAML))
	require.NoError(t, err)

	g, err := w.Graph()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.True(t, g.HasTriggers("summarize"))
}
