// Package api provides the HTTP API for vidfuse.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/embed"
	"github.com/vidfuse/vidfuse/internal/search"
	"github.com/vidfuse/vidfuse/internal/store"
	"github.com/vidfuse/vidfuse/internal/telemetry"
)

// Server is the HTTP server for the vidfuse API.
type Server struct {
	engine   *search.Engine
	embedder embed.Embedder
	metadata store.MetadataStore
	metrics  *telemetry.QueryMetrics
	config   *config.Config
	logger   *slog.Logger
	server   *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithMetrics attaches a telemetry collector, enabling /api/v1/metrics.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, embedder embed.Embedder, metadata store.MetadataStore, cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	s := &Server{
		engine:   engine,
		embedder: embedder,
		metadata: metadata,
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/weights", s.handleWeights)
		r.Post("/videos", s.handleIngest)
		r.Get("/videos", s.handleListVideos)
		r.Get("/videos/{id}", s.handleGetVideo)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting HTTP server", "addr", addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
