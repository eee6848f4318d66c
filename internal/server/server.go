// Package server exposes the HTTP API: document upload, job polling
// and direct text analysis.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumio-app/lumio/internal/analysis"
	"github.com/lumio-app/lumio/internal/queue"
	"github.com/lumio-app/lumio/internal/results"
)

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0)
	Host string
	// Port is the port to listen on (default: 3000)
	Port int
	// MaxUploadBytes caps uploaded file size (default: 10 MiB)
	MaxUploadBytes int64
	// UploadDir is where staged uploads are written (default: os temp)
	UploadDir string

	Queue    *queue.Queue
	Results  *results.Store
	Analyzer *analysis.Analyzer
	// Redis is used for the readiness probe.
	Redis  *redis.Client
	Logger *slog.Logger
}

// Server is the Lumio HTTP server.
type Server struct {
	httpServer *http.Server
	queue      *queue.Queue
	results    *results.Store
	analyzer   *analysis.Analyzer
	redis      *redis.Client
	logger     *slog.Logger

	maxUploadBytes int64
	uploadDir      string
}

// New creates a Server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		queue:          cfg.Queue,
		results:        cfg.Results,
		analyzer:       cfg.Analyzer,
		redis:          cfg.Redis,
		logger:         cfg.Logger.With("component", "server"),
		maxUploadBytes: cfg.MaxUploadBytes,
		uploadDir:      cfg.UploadDir,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
