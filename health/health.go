package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Checker reports whether the service can take work.
type Checker interface {
	Ready(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ready(ctx context.Context) error { return f(ctx) }

const readyTimeout = 2 * time.Second

// Server serves /health and /ready.
type Server struct {
	logger  *zap.Logger
	checker Checker
	http    *http.Server
}

// NewServer creates a health server listening on port.
func NewServer(logger *zap.Logger, port int, checker Checker) *Server {
	s := &Server{logger: logger, checker: checker}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.checker.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "NOT READY", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})
	return mux
}

// Start binds the listener and serves in the background. A bind failure is
// returned immediately.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind health server on %s: %w", s.http.Addr, err)
	}
	s.logger.Info("starting health server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping health server")
	return s.http.Shutdown(ctx)
}
