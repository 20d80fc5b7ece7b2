package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/api/envelope"
	"github.com/amaumene/malsync/internal/api/handlers"
	"github.com/amaumene/malsync/internal/api/middleware"
	"github.com/amaumene/malsync/internal/cache"
	"github.com/amaumene/malsync/internal/config"
)

// Dependencies are the components the HTTP layer serves
type Dependencies struct {
	Reconciler handlers.Reconciler
	Streams    handlers.StreamLister
	Mappings   handlers.MappingCounter
	Caches     []cache.Named
	Users      handlers.UserAdmin     // admin API only
	Importer   handlers.ImportTrigger // admin API only
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Dependencies, logger *logrus.Logger) *Server {
	s := &Server{
		logger: logger,
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      NewRouter(cfg, deps, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// NewRouter configures all HTTP routes
func NewRouter(cfg *config.Config, deps Dependencies, logger *logrus.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return middleware.Logging(next, logger)
	})
	r.Use(chimiddleware.Recoverer)
	// Answers OPTIONS preflight before routing
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader, "ETag"},
		MaxAge:         86400,
	}))

	// Health check and metrics are not rate limited
	r.Get("/health", handlers.NewHealthHandler(logger).ServeHTTP)
	r.Get("/status", handlers.NewStatusHandler(deps.Mappings, deps.Caches, logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.AdminToken != "" {
		admin := handlers.NewAdminHandler(deps.Users, deps.Importer, logger)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.AdminToken))
			r.Put("/users/{userID}", admin.PutUser)
			r.Delete("/users/{userID}", admin.RemoveUser)
			r.Post("/mappings/import", admin.Import)
		})
	}

	subtitles := handlers.NewSubtitlesHandler(deps.Reconciler, logger)
	streams := handlers.NewStreamsHandler(deps.Streams, logger)

	r.Group(func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(
				cfg.RateLimitPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited(logger)),
			))
		}

		r.Get("/{userID}/subtitles/{type}/{id}.json", subtitles.ServeHTTP)
		// Extra video properties (hash, size, filename) follow the id
		r.Get("/{userID}/subtitles/{type}/{id}/*", subtitles.ServeHTTP)
		r.Get("/{userID}/stream/{type}/{id}.json", streams.ServeHTTP)
	})

	return r
}

// rateLimited answers requests over the limit through the envelope so they
// carry caching headers like every other response
func rateLimited(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"message": "Too many requests, slow down"}
		if err := envelope.RenderStatus(w, r, envelope.ClassUpstreamFailure, http.StatusTooManyRequests, payload); err != nil {
			logger.WithError(err).Error("Failed to write rate limit response")
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
