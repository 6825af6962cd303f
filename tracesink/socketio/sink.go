// Package socketio streams run trace events to a socket.io endpoint so a
// host dashboard can follow orchestration progress live.
package socketio

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/flowgridgo/trace"
)

// DefaultEvent is the socket.io event name used when Config.Event is empty.
const DefaultEvent = "node_execution"

// Config describes the endpoint trace events are streamed to.
type Config struct {
	// URL is the socket.io server URL, e.g. "http://host:3000/socket.io".
	URL string
	// Namespace to join; empty means the root namespace.
	Namespace string
	// Event is the emitted event name; defaults to DefaultEvent.
	Event string
	// Buffer is the in-flight event buffer; when full, events are
	// dropped rather than stalling the run. Defaults to 256.
	Buffer int
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// Logger receives connection and drop diagnostics.
	Logger *slog.Logger
}

// Sink emits every trace record to a socket.io server. Appends are
// non-blocking: a background goroutine owns the connection, and the run
// never waits on the network.
type Sink struct {
	cfg     Config
	logger  *slog.Logger
	events  chan trace.NodeExecution
	done    chan struct{}
	io      *socket.Socket
	manager *socket.Manager
	once    sync.Once
	closed  atomic.Bool
}

// New connects a sink to the configured endpoint. The connection is
// established asynchronously; events appended before it is up are
// buffered.
func New(cfg Config) (*Sink, error) {
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("socketio sink: parse URL: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))
	if cfg.InsecureSkipVerify {
		cfg.Logger.Warn("socketio sink: skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	s := &Sink{
		cfg:     cfg,
		logger:  cfg.Logger.With("sink", "socketio", "url", cfg.URL),
		events:  make(chan trace.NodeExecution, cfg.Buffer),
		done:    make(chan struct{}),
		io:      io,
		manager: manager,
	}

	io.On(types.EventName("connect"), func(...any) {
		s.logger.Info("connected", "namespace", cfg.Namespace, "sid", io.Id())
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		s.logger.Warn("connect error", "error", fmt.Sprint(errs...))
	})

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

// Close drains buffered events and disconnects. Further Appends are
// dropped.
func (s *Sink) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.events)
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			s.logger.Warn("timed out draining trace events")
		}
		s.io.Disconnect()
	})
	return nil
}

// loop owns the socket and forwards events in append order.
func (s *Sink) loop() {
	defer close(s.done)
	for ev := range s.events {
		payload, err := toPayload(ev)
		if err != nil {
			s.logger.Warn("failed to encode trace event", "node", ev.Node, "error", err)
			continue
		}
		s.io.Emit(s.cfg.Event, payload)
	}
}

// toPayload round-trips the record through JSON into a generic map, the
// shape socket.io clients expect to emit.
func toPayload(ev trace.NodeExecution) (map[string]any, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
