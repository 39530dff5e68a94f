package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

// Buffer is the producer side of the timestamp buffer.
type Buffer interface {
	Offer(ts time.Time) bool
	Size() int
	Capacity() int
}

// Reader reads every persisted timestamp.
type Reader interface {
	FindAll(ctx context.Context) ([]time.Time, error)
}

// Availability reports whether the store is believed reachable.
type Availability interface {
	IsAvailable() bool
}

// HealthChecker verifies an optional upstream with a round trip.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the collaborators the gateway serves.
type Deps struct {
	Buffer       Buffer
	Reader       Reader
	Availability Availability

	// Broker is the message broker feeding the buffer. When set, GET /health
	// reports its state.
	Broker HealthChecker

	// Metrics instruments HTTP requests; may be nil.
	Metrics *observability.Metrics

	// MetricsHandler serves GET /metrics; nil leaves the route unregistered.
	MetricsHandler http.Handler
}

// Server is the HTTP gateway.
type Server struct {
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger *slog.Logger

	handler http.Handler
	server  *http.Server
}

// NewServer creates a new HTTP gateway.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Buffer == nil || deps.Reader == nil || deps.Availability == nil {
		return nil, ErrMissingDependency
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		logger: logger.With("component", "gateway"),
	}
	s.handler = s.buildRouter()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	return s, nil
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(observability.HTTPMetrics(s.deps.Metrics))
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Route("/v1/timestamps", func(r chi.Router) {
		r.Use(RateLimit(s.cfg.RateLimit))
		r.Use(s.bodySizeLimitMiddleware)

		r.Post("/", s.handleRecord)
		r.Get("/", s.handleList)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP gateway listening", "addr", s.cfg.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.logger.Info("shutting down HTTP gateway")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown failed: %w", err)
	}
	return nil
}
