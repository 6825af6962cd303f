// Package trace records what happened during one orchestration run. The
// run trace is an append-only, ordered log of node execution events and
// is the single source of truth for replaying context mutations in
// order.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one node execution attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends a node's participation in the
// run. Retrying is not terminal; the node will run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// NodeExecution is one runtime record of a node attempt transition.
type NodeExecution struct {
	RunID   string    `json:"run_id"`
	Node    string    `json:"node"`
	Attempt int       `json:"attempt"`
	Status  Status    `json:"status"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end,omitzero"`
	Error   string    `json:"error,omitempty"`
	// Delta holds the context writes committed by a succeeded attempt.
	Delta map[string]any `json:"delta,omitempty"`
}

// Sink receives every appended record, letting the host stream progress
// without the engine depending on a storage or transport. Sinks are
// called in append order from the recording goroutine and must return
// promptly; slow sinks should buffer internally.
type Sink interface {
	Append(ev NodeExecution)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(NodeExecution)

func (f SinkFunc) Append(ev NodeExecution) { f(ev) }

// Recorder accumulates the run trace. It is owned by the scheduler for
// the run's duration and handed off to the host afterwards.
type Recorder struct {
	mu     sync.Mutex
	runID  string
	events []NodeExecution
	sinks  []Sink
	handed bool
}

// NewRecorder creates a recorder with a fresh run identifier.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{
		runID: uuid.NewString(),
		sinks: sinks,
	}
}

// RunID returns the run's unique identifier.
func (r *Recorder) RunID() string { return r.runID }

// Record stamps the event with the run identifier, appends it, and fans
// it out to the sinks. Records arriving after Handoff are dropped.
func (r *Recorder) Record(ev NodeExecution) {
	ev.RunID = r.runID

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handed {
		return
	}
	r.events = append(r.events, ev)
	// Fan out under the lock so sinks observe events in append order.
	for _, s := range r.sinks {
		s.Append(ev)
	}
}

// Events returns a copy of the trace so far.
func (r *Recorder) Events() []NodeExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]NodeExecution(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Handoff transfers ownership of the trace to the caller. The recorder
// stops accepting records; the returned slice is the caller's to keep.
func (r *Recorder) Handoff() []NodeExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handed = true
	out := r.events
	r.events = nil
	return out
}
