// Package slogsink mirrors run trace events into structured logs.
package slogsink

import (
	"log/slog"

	"github.com/vk/flowgridgo/trace"
)

// Sink logs one line per trace event.
type Sink struct {
	logger *slog.Logger
}

// New creates a sink writing to the given logger; nil means slog.Default.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// Append implements trace.Sink.
func (s *Sink) Append(ev trace.NodeExecution) {
	attrs := []any{
		"run_id", ev.RunID,
		"node", ev.Node,
		"attempt", ev.Attempt,
		"status", string(ev.Status),
	}
	if ev.Error != "" {
		attrs = append(attrs, "error", ev.Error)
	}
	if len(ev.Delta) > 0 {
		attrs = append(attrs, "writes", len(ev.Delta))
	}
	switch ev.Status {
	case trace.StatusFailed, trace.StatusCancelled:
		s.logger.Warn("node execution", attrs...)
	default:
		s.logger.Info("node execution", attrs...)
	}
}
