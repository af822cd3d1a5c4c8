// Package web provides the HTTP ingest surface: an API endpoint that accepts
// drive-test log uploads and writes them to InfluxDB through the pipeline.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"gnt2influx/internal/config"
	"gnt2influx/internal/influx"
	"gnt2influx/internal/observability"
	"gnt2influx/internal/pipeline"
	"gnt2influx/internal/web/middleware"
)

// Server is the HTTP server for ingest, health, and metrics endpoints.
type Server struct {
	cfg       *config.Config
	pipe      *pipeline.Pipeline
	client    influx.Client
	collector *observability.Collector
	gate      *ingestGate
	log       *slog.Logger

	router *chi.Mux
	server *http.Server
}

// NewServer wires the routes and middleware. The collector may be nil, in
// which case /metrics serves the default Prometheus registry.
func NewServer(cfg *config.Config, pipe *pipeline.Pipeline, client influx.Client, collector *observability.Collector, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		pipe:      pipe,
		client:    client,
		collector: collector,
		gate:      newIngestGate(cfg.Server.IngestWait.Duration),
		log:       log,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout.Duration))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Method(http.MethodGet, "/metrics", s.collector.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
	})
}

// Start begins listening for HTTP requests and blocks until the server
// stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.Server.Addr,
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout.Duration,
		IdleTimeout: s.cfg.Server.IdleTimeout.Duration,
	}

	s.log.Info("starting server", "addr", s.cfg.Server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for a running ingest to
// drain so an in-flight write is not abandoned mid-batch.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.gate.waitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
