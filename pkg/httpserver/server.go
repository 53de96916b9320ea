package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mselser95/predict-trader/pkg/healthprobe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for metrics, health checks and read-only trading state.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker

	// Optional. Routes are only mounted when the reader is set.
	Books     BookReader
	Positions PositionReader
}

// New creates a new HTTP server.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.HealthChecker == nil {
		return nil, errors.New("health checker cannot be nil")
	}

	return &Server{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           newRouter(cfg),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}, nil
}

func newRouter(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	h := &handlers{
		books:     cfg.Books,
		positions: cfg.Positions,
		logger:    cfg.Logger,
	}
	r.Route("/api", func(r chi.Router) {
		if cfg.Books != nil {
			r.Get("/book/{marketID}", h.handleBook)
		}
		if cfg.Positions != nil {
			r.Get("/positions", h.handlePositions)
		}
	})

	return r
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Serve serves on an existing listener. Used when the caller picks the port.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http-server-starting", zap.String("addr", ln.Addr().String()))

	err := s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
