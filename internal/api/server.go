// Package api provides the HTTP API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/api/handlers"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	server *http.Server
	logger zerolog.Logger
}

// Config holds server configuration.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds a single request, including synchronous
	// generation runs
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8081,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   6 * time.Minute,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Minute,
	}
}

// New creates a new API server.
func New(cfg Config, deps handlers.Dependencies, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	h := handlers.New(deps, logger)
	router := Routes(h, cfg.RequestTimeout, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		router: router,
		server: server,
		logger: logger,
	}
}

// Routes builds the router with the middleware stack.
func Routes(h *handlers.Handlers, requestTimeout time.Duration, logger zerolog.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(corsMiddleware)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		router.Use(middleware.Timeout(requestTimeout))
	}

	router.Route("/api", func(r chi.Router) {
		r.Route("/generations", func(r chi.Router) {
			r.Post("/", h.CreateGeneration)
			r.Get("/{jobID}", h.GetGeneration)
		})

		r.Route("/bundles", func(r chi.Router) {
			r.Get("/", h.ListBundles)

			r.Route("/{bundleID}", func(r chi.Router) {
				r.Get("/", h.GetBundle)
				r.Delete("/", h.DeleteBundle)
				r.Post("/inbox", h.CreateInbox)
				r.Get("/inbox", h.GetInbox)
			})
		})

		r.Route("/targets", func(r chi.Router) {
			r.Post("/", h.CreateTarget)
			r.Get("/", h.ListTargets)

			r.Route("/{targetID}", func(r chi.Router) {
				r.Get("/", h.GetTarget)
				r.Delete("/", h.DeleteTarget)
			})
		})
	})

	router.Get("/health", h.HealthCheck)
	router.Get("/ready", h.ReadyCheck)

	return router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// requestLogger returns a middleware that logs requests.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()

				event := logger.Info()
				if status >= 500 {
					event = logger.Error()
				} else if status >= 400 {
					event = logger.Warn()
				}

				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("duration", time.Since(start)).
					Str("remote", r.RemoteAddr).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("Request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// corsMiddleware adds CORS headers for cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
