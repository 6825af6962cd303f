package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/flowgridgo/hclflow"
	"github.com/vk/flowgridgo/workflow"
	"github.com/vk/flowgridgo/yamlflow"
)

// Config holds everything an App needs for one invocation.
type Config struct {
	WorkflowPath    string
	Strategy        string
	Workers         int
	GracePeriod     time.Duration
	LogLevel        string
	LogFormat       string
	HealthcheckPort int
	// WebhookURL, when set, streams trace events to an HTTP endpoint.
	WebhookURL string
	// SocketIOURL, when set, streams trace events to a socket.io server.
	SocketIOURL string
}

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	out          io.Writer
	logger       *slog.Logger
	healthServer *http.Server
}

// New constructs an App with its own isolated logger.
func New(out io.Writer, cfg *Config) *App {
	return &App{
		out:    out,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, out),
	}
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Load reads the workflow definition at path, choosing the loader by
// file extension.
func (a *App) Load(ctx context.Context, path string) (*workflow.Workflow, error) {
	var loader workflow.Loader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		loader = hclflow.NewLoader()
	case ".yaml", ".yml":
		loader = yamlflow.NewLoader()
	default:
		return nil, fmt.Errorf("unsupported workflow format %q (want .hcl, .yaml, or .yml)", filepath.Ext(path))
	}
	w, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("workflow loaded", "path", path, "name", w.Name,
		"nodes", len(w.Nodes), "edges", len(w.Edges))
	return w, nil
}

// newLogger creates a slog.Logger without touching the global default,
// so embedding hosts keep their own logging intact.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
