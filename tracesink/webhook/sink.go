// Package webhook posts run trace events as JSON to an HTTP endpoint,
// letting hosts collect progress without linking against the engine.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/flowgridgo/trace"
)

// Config describes the receiving endpoint.
type Config struct {
	// URL receives one POST per trace event with a JSON body.
	URL string
	// Timeout bounds each request; defaults to 10s.
	Timeout time.Duration
	// Buffer is the in-flight event buffer; when full, events are
	// dropped rather than stalling the run. Defaults to 256.
	Buffer int
	// Logger receives delivery diagnostics.
	Logger *slog.Logger
}

// Sink delivers trace events over HTTP from a background goroutine.
// Appends never block on the network.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client
	events chan trace.NodeExecution
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// New creates a webhook sink with a pooled HTTP transport.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook sink: URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Sink{
		cfg:    cfg,
		logger: cfg.Logger.With("sink", "webhook", "url", cfg.URL),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		events: make(chan trace.NodeExecution, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// Append implements trace.Sink. It never blocks; when the buffer is full
// the event is dropped with a warning.
func (s *Sink) Append(ev trace.NodeExecution) {
	if s.closed.Load() {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full, dropping trace event",
			"node", ev.Node, "status", string(ev.Status))
	}
}

// Close drains buffered events and releases the transport. Further
// Appends are dropped.
func (s *Sink) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.events)
		select {
		case <-s.done:
		case <-time.After(30 * time.Second):
			s.logger.Warn("timed out draining trace events")
		}
		s.client.CloseIdleConnections()
	})
	return nil
}

func (s *Sink) loop() {
	defer close(s.done)
	for ev := range s.events {
		if err := s.post(ev); err != nil {
			s.logger.Warn("failed to deliver trace event", "node", ev.Node, "error", err)
		}
	}
}

func (s *Sink) post(ev trace.NodeExecution) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	resp, err := s.client.Post(s.cfg.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
