// Package health serves a small read-only HTTP API describing a running
// monitor: a liveness probe and the active event selection.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tripwire/fswatch/internal/filter"
	"github.com/tripwire/fswatch/internal/watcher"
)

// Source is the view of the monitor the endpoints need. *watcher.Monitor
// satisfies it.
type Source interface {
	Stats() watcher.Stats
	Filter() *filter.Set
}

// Status is the payload returned by GET /healthz.
type Status struct {
	Status  string        `json:"status"`
	UptimeS float64       `json:"uptime_s"`
	Monitor watcher.Stats `json:"monitor"`
}

// FilterStatus is the payload returned by GET /filter.
type FilterStatus struct {
	Events []string `json:"events"`
}

// NewRouter returns the chi router for src.
//
// Route layout:
//
//	GET /healthz   monitor state and counters; 503 unless watching
//	GET /filter    the kinds currently accepted
func NewRouter(src Source, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{src: src, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/filter", h.filter)
	return r
}

type handlers struct {
	src    Source
	logger *slog.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	st := h.src.Stats()
	body := Status{Status: "ok", Monitor: st}
	code := http.StatusOK
	if st.State != watcher.StateWatching.String() {
		body.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if !st.StartedAt.IsZero() {
		body.UptimeS = time.Since(st.StartedAt).Seconds()
	}
	h.writeJSON(w, code, body)
}

func (h *handlers) filter(w http.ResponseWriter, r *http.Request) {
	body := FilterStatus{Events: []string{}}
	for _, k := range h.src.Filter().Kinds() {
		body.Events = append(body.Events, k.String())
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("health: failed to encode response", slog.Any("error", err))
	}
}

// Server runs the router on addr until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer returns a Server for src listening on addr.
func NewServer(addr string, src Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(src, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		logger: logger,
	}
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// A listen failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", slog.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("health: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("health server shutdown error", slog.Any("error", err))
	}
	return nil
}
