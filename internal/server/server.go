// Package server exposes the strategy catalog, stored assets, profiles and
// pipeline runs over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/reviewqa/internal/anomaly"
	"github.com/inferloop/reviewqa/internal/observability/health"
	"github.com/inferloop/reviewqa/internal/observability/metrics"
	"github.com/inferloop/reviewqa/internal/profile"
	"github.com/inferloop/reviewqa/internal/stage"
	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/interfaces"
)

// Config contains server configuration
type Config struct {
	Host            string        `yaml:"host" json:"host" mapstructure:"host"`
	Port            int           `yaml:"port" json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	EnableMetrics   bool          `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	MaxRequestSize  int64         `yaml:"max_request_size" json:"max_request_size" mapstructure:"max_request_size"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            constants.DefaultHost,
		Port:            constants.DefaultPort,
		ReadTimeout:     constants.DefaultReadTimeout,
		WriteTimeout:    constants.DefaultWriteTimeout,
		IdleTimeout:     constants.DefaultIdleTimeout,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
		EnableMetrics:   true,
		MaxRequestSize:  1 << 20,
	}
}

// Deps carries the components the API serves.
type Deps struct {
	Registry *anomaly.Registry
	// Repository must also implement interfaces.DatasetLister for asset listing.
	Repository interfaces.DatasetRepository
	Profiles   *profile.GormRepository
	Env        stage.Env
	Health     *health.HealthMonitor
	Metrics    *metrics.PipelineMetrics
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *logrus.Logger
	config     *Config
	deps       Deps
}

// NewServer creates a new HTTP server instance
func NewServer(config *Config, deps Deps, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	if deps.Repository == nil {
		return nil, fmt.Errorf("dataset repository is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewHealthMonitor(logger)
	}
	if deps.Env.Repository == nil {
		deps.Env.Repository = deps.Repository
	}
	if deps.Env.Logger == nil {
		deps.Env.Logger = logger
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		config: config,
		deps:   deps,
	}
	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Start serves until the server is stopped.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error shutting down HTTP server: %v", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix(constants.APIPrefix).Subrouter()
	api.HandleFunc("/strategies", s.handleStrategies).Methods(http.MethodGet)
	api.HandleFunc("/patterns", s.handlePatterns).Methods(http.MethodGet)
	api.HandleFunc("/assets", s.handleListAssets).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}", s.handleAsset).Methods(http.MethodGet)
	api.HandleFunc("/profiles", s.handleProfiles).Methods(http.MethodGet)
	api.HandleFunc("/pipelines/run", s.handleRunPipeline).Methods(http.MethodPost)

	if s.config.EnableMetrics && s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestSizeLimitMiddleware)
}
