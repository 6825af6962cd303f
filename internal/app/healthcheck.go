package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("health check endpoint hit", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// startHealthcheckServer runs a liveness endpoint for the duration of a
// run, so supervisors can probe long-lived workflow executions.
func (a *App) startHealthcheckServer(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", port)
	a.healthServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		a.logger.Info("health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) stopHealthcheckServer() {
	if a.healthServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.healthServer.Shutdown(ctx); err != nil {
		a.logger.Error("health check server shutdown failed", "error", err)
	}
	a.healthServer = nil
}
