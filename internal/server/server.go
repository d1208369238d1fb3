// Package server provides the HTTP API for Tegami search.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tegami/internal/config"
	"github.com/hyperjump/tegami/internal/embedding"
	"github.com/hyperjump/tegami/internal/indexer"
	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/search"
)

// MessageWriter stores messages submitted through the API before they are indexed.
type MessageWriter interface {
	PutMessage(ctx context.Context, msg *models.Message) error
}

// Server is the HTTP server for the search API.
type Server struct {
	engine   *search.Engine
	manager  *indexer.Manager
	messages MessageWriter
	provider embedding.Provider
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. messages may be nil when the
// message store is fed by another process.
func NewServer(
	engine *search.Engine,
	manager *indexer.Manager,
	messages MessageWriter,
	provider embedding.Provider,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		manager:  manager,
		messages: messages,
		provider: provider,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/emails", s.handleIndexEmail)
		r.Delete("/emails/{id}", s.handleRemoveEmail)
		r.Delete("/accounts/{id}", s.handleRemoveAccount)
		r.Post("/accounts/{id}/reindex", s.handleReindexAccount)
		r.Post("/maintenance/backfill", s.handleBackfill)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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
