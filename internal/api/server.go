// Package api provides the HTTP server and routing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kafkasr/schema-registry/internal/api/handlers"
	"github.com/kafkasr/schema-registry/internal/api/types"
	"github.com/kafkasr/schema-registry/internal/config"
	"github.com/kafkasr/schema-registry/internal/forwarder"
	"github.com/kafkasr/schema-registry/internal/metrics"
)

// Server is the HTTP front of a registry node. Reads are answered from the
// node's own materialized state; mutations go through the Service, which on
// a follower forwards them to the leader.
type Server struct {
	config   *config.Config
	registry handlers.Service
	router   chi.Router
	server   *http.Server
	logger   *slog.Logger
	metrics  *metrics.Metrics

	handlerCfg *handlers.Config
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithMetrics shares an externally created metrics registry, so other
// components (the log consumer, leader transitions) report into the same
// /metrics endpoint.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHandlerConfig overrides the identity the metadata endpoints report.
func WithHandlerConfig(cfg handlers.Config) ServerOption {
	return func(s *Server) {
		s.handlerCfg = &cfg
	}
}

// NewServer creates a new HTTP server around reg.
func NewServer(cfg *config.Config, reg handlers.Service, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		config:   cfg,
		registry: reg,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.setupRouter()
	return s
}

// Metrics returns the metrics instance for recording custom metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(forwardHeadersMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.schemaregistry.v1+json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{ErrorCode: http.StatusMethodNotAllowed, Message: "Method not allowed"})
	})

	var h *handlers.Handler
	if s.handlerCfg != nil {
		h = handlers.NewWithConfig(s.registry, *s.handlerCfg)
	} else {
		h = handlers.New(s.registry)
	}

	r.Get("/", h.HealthCheck)
	r.Get("/health/live", h.LivenessCheck)
	r.Get("/health/ready", h.ReadinessCheck)
	r.Get("/health/startup", h.StartupCheck)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	// Root-level routes operate on the default context.
	s.mountRegistryRoutes(r, h)

	// Context-scoped routes mirror the registry routes, resolved against the
	// named context.
	r.Route("/contexts/{context}", func(r chi.Router) {
		r.Use(contextExtractionMiddleware)
		s.mountRegistryRoutes(r, h)
	})

	s.router = r
}

// mountRegistryRoutes registers all schema registry API routes on the given
// router. Called twice: once at root level (default context) and once under
// /contexts/{context}.
func (s *Server) mountRegistryRoutes(r chi.Router, h *handlers.Handler) {
	// Schema types
	r.Get("/schemas/types", h.GetSchemaTypes)

	// Schema listing
	r.Get("/schemas", h.ListSchemas)

	// Schema by ID
	r.Get("/schemas/ids/{id}", h.GetSchemaByID)
	r.Get("/schemas/ids/{id}/schema", h.GetRawSchemaByID)
	r.Get("/schemas/ids/{id}/subjects", h.GetSubjectsBySchemaID)
	r.Get("/schemas/ids/{id}/versions", h.GetVersionsBySchemaID)

	// Subjects
	r.Get("/subjects", h.ListSubjects)
	r.Get("/subjects/{subject}/versions", h.GetVersions)
	r.Get("/subjects/{subject}/versions/{version}", h.GetVersion)
	r.Get("/subjects/{subject}/versions/{version}/schema", h.GetRawSchemaByVersion)
	r.Get("/subjects/{subject}/versions/{version}/referencedby", h.GetReferencedBy)
	r.Post("/subjects/{subject}/versions", h.RegisterSchema)
	r.Post("/subjects/{subject}", h.LookupSchema)
	r.Delete("/subjects/{subject}", h.DeleteSubject)
	r.Delete("/subjects/{subject}/versions/{version}", h.DeleteVersion)

	// Config
	r.Get("/config", h.GetConfig)
	r.Put("/config", h.SetConfig)
	r.Delete("/config", h.DeleteGlobalConfig)
	r.Get("/config/{subject}", h.GetConfig)
	r.Put("/config/{subject}", h.SetConfig)
	r.Delete("/config/{subject}", h.DeleteConfig)

	// Mode
	r.Get("/mode", h.GetMode)
	r.Put("/mode", h.SetMode)
	r.Get("/mode/{subject}", h.GetMode)
	r.Put("/mode/{subject}", h.SetMode)
	r.Delete("/mode/{subject}", h.DeleteMode)

	// Import (for migration from other schema registries)
	r.Post("/import/schemas", h.ImportSchemas)

	// Compatibility
	r.Post("/compatibility/subjects/{subject}/versions/{version}", h.CheckCompatibility)
	r.Post("/compatibility/subjects/{subject}/versions", h.CheckCompatibility)

	// Contexts
	r.Get("/contexts", h.GetContexts)

	// Metadata (v1 API)
	r.Get("/v1/metadata/id", h.GetClusterID)
	r.Get("/v1/metadata/version", h.GetServerVersion)
}

// forwardHeadersMiddleware stashes the forwardable request headers on the
// request context, so a mutation that lands on a follower can carry them
// along when it forwards to the leader.
func forwardHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := forwarder.WithHeaders(r.Context(), r.Header)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	s.logger.Info("starting server", slog.String("address", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Address returns the server's base URL.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s", s.config.Address())
}
