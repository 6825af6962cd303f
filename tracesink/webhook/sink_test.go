package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowgridgo/trace"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "URL must not be empty")
}

func TestDelivery(t *testing.T) {
	var mu sync.Mutex
	var received []trace.NodeExecution
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev trace.NodeExecution
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	s.Append(trace.NodeExecution{RunID: "r1", Node: "a", Attempt: 1, Status: trace.StatusRunning})
	s.Append(trace.NodeExecution{RunID: "r1", Node: "a", Attempt: 1, Status: trace.StatusSucceeded})
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, trace.StatusRunning, received[0].Status)
	assert.Equal(t, trace.StatusSucceeded, received[1].Status)
	assert.Equal(t, "a", received[0].Node)
}

func TestServerErrorsDoNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	// Delivery failures are logged, never surfaced to the run.
	s.Append(trace.NodeExecution{Node: "a", Status: trace.StatusFailed})
	assert.NoError(t, s.Close())
}

func TestAppendAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	assert.NotPanics(t, func() {
		s.Append(trace.NodeExecution{Node: "late"})
	})
}

func TestFullBufferDrops(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	s, err := New(Config{URL: srv.URL, Buffer: 1, Timeout: time.Second})
	require.NoError(t, err)

	// One event in flight, one buffered, the rest dropped without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Append(trace.NodeExecution{Node: "n", Status: trace.StatusRunning})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a full buffer")
	}
}
