// Package diag serves the local diagnostics endpoints: health, runtime
// status, and Prometheus metrics. It binds to loopback by default and
// carries no agent functionality of its own.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/metrics"
	"github.com/amplifylabs/amplify-agent/pkg/version"
)

// StatusFunc supplies the current runtime status snapshot.
type StatusFunc func() map[string]interface{}

// Server is the diagnostics HTTP server.
type Server struct {
	srv     *http.Server
	started time.Time
}

// New creates a server bound to host:port.
func New(host string, port int, status StatusFunc) *Server {
	s := &Server{started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus(status))
	r.Handle("/metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Diagnostics server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"version": version.Version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
		}
		if status != nil {
			for k, v := range status() {
				body[k] = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Diagnostics response write failed")
	}
}
