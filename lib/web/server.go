// Package web serves a read-only status endpoint for a running netpool
// client: JSON statistics, liveness and readiness probes, and the metrics
// registry in Prometheus text format.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-i2p/netpool/lib/core"
	"github.com/go-i2p/netpool/lib/metrics"
)

// StatsSource reports client statistics. *core.Client implements it.
type StatsSource interface {
	Stats() core.Stats
}

// Config holds status server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:9180")
	ListenAddr string
	// Source provides the statistics served under /api/stats
	Source StatsSource
}

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	source     StatsSource

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// New creates a status server. It does not listen until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("web: stats source is required")
	}

	s := &Server{source: cfg.Source}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", s.handleAPIStats)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.Handle("GET /metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withMiddleware(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.running = true

	log.WithField("addr", ln.Addr().String()).Info("status server started")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("status server error")
		}
	}()

	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("status server stopped")
	return nil
}

// withMiddleware wraps the handler with common middleware.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)

		log.WithField("method", r.Method).WithField("path", r.URL.Path).
			WithField("duration", time.Since(start).String()).Debug("request")
	})
}
