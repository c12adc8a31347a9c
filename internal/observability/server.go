package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/decider/internal/config"
	"github.com/rafaeljc/decider/internal/decider"
)

// Server exposes probes, metrics and the feature inventory on a dedicated port.
// It never serves decisions.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	router   *chi.Mux
	current  func() *decider.Decider
	checkers []Checker
}

// NewServer creates the observability server. current returns the Decider in
// service and may be nil, in which case the inventory endpoint is not mounted.
// Checkers (e.g., postgres, redis) gate the readiness probe.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, current func() *decider.Decider, checkers ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	s := &Server{
		logger:   logger,
		cfg:      cfg,
		router:   r,
		current:  current,
		checkers: checkers,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get(s.cfg.LivenessPath, s.liveness)
	s.router.Get(s.cfg.ReadinessPath, s.readiness)

	// promhttp.Handler() exposes every metric registered in metrics.go.
	s.router.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.Handler())

	if s.current != nil && s.cfg.FeaturesPath != "" {
		s.router.Get(s.cfg.FeaturesPath, s.features)
	}
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured port and serves until ctx is cancelled, then
// drains in-flight requests for up to Timeout. A port that cannot be bound is
// reported immediately so `decider serve` fails instead of running blind.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort("", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observability server: %w", err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  s.cfg.Timeout * 3,
	}

	s.logger.Info("starting observability server",
		slog.String("addr", ln.Addr().String()),
		slog.String("liveness_path", s.cfg.LivenessPath),
		slog.String("readiness_path", s.cfg.ReadinessPath),
		slog.String("metrics_path", s.cfg.MetricsPath),
		slog.String("features_path", s.cfg.FeaturesPath),
	)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return fmt.Errorf("observability server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("stopping observability server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("observability server shutdown: %w", err)
	}
	return nil
}
