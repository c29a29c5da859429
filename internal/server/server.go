// Package server provides the read-only HTTP API over persisted experiment runs.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/vecbench/internal/config"
	"github.com/hyperjump/vecbench/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the results API.
type Server struct {
	storage  storage.Storage
	config   *config.ServerConfig
	dbPath   string
	cacheDir string
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. dbPath and cacheDir
// are only used to report disk usage.
func NewServer(store storage.Storage, cfg *config.ServerConfig, dbPath, cacheDir string, logger *zap.Logger) *Server {
	return &Server{
		storage:  store,
		config:   cfg,
		dbPath:   dbPath,
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/api/v1/runs", s.handleListRuns)
	r.Get("/api/v1/runs/{id}", s.handleGetRun)
	r.Get("/api/v1/runs/{id}/table.csv", s.handleRunCSV)
	r.Delete("/api/v1/runs/{id}", s.handleDeleteRun)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
