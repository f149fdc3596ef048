package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/alphaforge/engine/internal/orchestrator"
	"github.com/alphaforge/engine/internal/retention"
)

// Server is the run control-plane HTTP server (spec §6).
type Server struct {
	router *mux.Router
	server *http.Server
	config Config

	orch      *orchestrator.Orchestrator
	retention *retention.Manager
}

// Config holds server configuration.
type Config struct {
	Addr         string
	ArtifactsDir string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the server's baked-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ArtifactsDir: "./artifacts",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer wires a Server over an already-constructed Orchestrator and
// retention Manager.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, mgr *retention.Manager) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:    router,
		config:    cfg,
		orch:      orch,
		retention: mgr,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/runs", s.handleSubmitRun).Methods(http.MethodPost)
	s.router.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run_hash}", s.handleRunDetail).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run_hash}/cancel", s.handleCancelRun).Methods(http.MethodPost)
	s.router.HandleFunc("/runs/{run_hash}/events", s.handleEventsSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run_hash}/events/stream", s.handleEventsStream).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run_hash}/artifacts", s.handleArtifactsManifest).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run_hash}/artifact/{name}", s.handleArtifactFetch).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run_hash}/hashes", s.handleHashes).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusCapture struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCapture) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Start binds and serves; blocks until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Addr, err)
	}
	log.Info().Str("addr", s.config.Addr).Msg("starting http server")
	return s.server.Serve(listener)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
