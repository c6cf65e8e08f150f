// Package api exposes the analysis service over HTTP: a small JSON API
// for starting and inspecting tasks plus a WebSocket endpoint streaming
// live progress.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/go2siri/github-pr-metrics/internal/notify"
	"github.com/go2siri/github-pr-metrics/internal/task"
)

const apiVersion = "1.0.0"

// Config tunes the HTTP server. Zero values fall back to defaults.
type Config struct {
	Addr              string
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// Server is the HTTP API server.
type Server struct {
	registry *task.Registry
	hub      *notify.Hub
	validate *validator.Validate
	router   chi.Router
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	heartbeatInterval time.Duration
	startedAt         time.Time

	// githubPing probes GitHub API reachability for the health
	// endpoint. Replaceable in tests.
	githubPing func(ctx context.Context) bool
}

// NewServer creates a fully routed API server.
func NewServer(registry *task.Registry, hub *notify.Hub, cfg Config) *Server {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		registry: registry,
		hub:      hub,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		heartbeatInterval: cfg.HeartbeatInterval,
		startedAt:         time.Now(),
		githubPing:        pingGitHub,
	}
	s.router = s.routes()
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleRoot)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/analysis/{taskID}", s.handleGetAnalysis)
		r.Delete("/analysis/{taskID}", s.handleDeleteTask)
	})
	r.Get("/ws/{taskID}", s.handleWebSocket)
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// requestLogger logs one line per request with latency and status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

// pingGitHub reports whether the GitHub API answers at all.
func pingGitHub(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
