// Package api exposes analysis sessions over HTTP: submission, live progress
// over Server-Sent Events, snapshots and rendered reports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/diagnostics"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/extract"
	"github.com/aether-labs/aether/internal/logging"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "aether"

// Submitter starts the pipeline for a document and returns the session ID.
type Submitter interface {
	Submit(ctx context.Context, doc core.Document) (string, error)
}

// Server provides the HTTP endpoints for analysis sessions.
type Server struct {
	router          chi.Router
	store           core.SessionStore
	broadcaster     *events.Broadcaster
	submitter       Submitter
	extractor       *extract.Extractor
	logger          *logging.Logger
	heartbeat       time.Duration
	corsOrigins     []string
	shutdownTimeout time.Duration
	diagnostics     *diagnostics.Collector
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHeartbeat sets the interval of SSE keep-alive comments.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithCORSOrigins sets the allowed browser origins. Empty allows any.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithExtractor replaces the default document extractor.
func WithExtractor(e *extract.Extractor) ServerOption {
	return func(s *Server) {
		s.extractor = e
	}
}

// WithShutdownTimeout bounds graceful shutdown in ListenAndServe.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithDiagnostics replaces the host metrics collector.
func WithDiagnostics(c *diagnostics.Collector) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.diagnostics = c
		}
	}
}

// NewServer creates a new API server.
func NewServer(store core.SessionStore, b *events.Broadcaster, submitter Submitter, opts ...ServerOption) *Server {
	s := &Server{
		store:           store,
		broadcaster:     b,
		submitter:       submitter,
		extractor:       extract.New(extract.DefaultMaxBytes),
		logger:          logging.NewNop(),
		heartbeat:       15 * time.Second,
		shutdownTimeout: 30 * time.Second,
		diagnostics:     diagnostics.NewCollector(""),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match", "X-Requested-With"},
		ExposedHeaders:   []string{"ETag", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/system", s.handleSystem)

		r.Route("/analyses", func(r chi.Router) {
			r.Get("/", s.handleListAnalyses)
			r.Post("/", s.handleCreateAnalysis)

			r.Route("/{analysisID}", func(r chi.Router) {
				r.Get("/", s.handleGetAnalysis)
				r.Delete("/", s.handleDeleteAnalysis)
				r.Get("/report", s.handleGetReport)
				r.Get("/stream", s.handleStream)
			})
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	s.respondJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Open SSE streams end when the shutdown timeout expires.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
