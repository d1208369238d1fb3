package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hyperjump/tegami/internal/config"
	"github.com/hyperjump/tegami/internal/embedding"
	"github.com/hyperjump/tegami/internal/indexer"
	"github.com/hyperjump/tegami/internal/keyword"
	"github.com/hyperjump/tegami/internal/search"
	"github.com/hyperjump/tegami/internal/storage"
	"github.com/hyperjump/tegami/internal/vector"
)

// Components holds everything a command needs to index or query.
type Components struct {
	Storage  *storage.SQLiteStorage
	Provider embedding.Provider
	Lexical  *keyword.BleveIndex
	Vectors  *vector.MemoryIndex
	Manager  *indexer.Manager
	Engine   *search.Engine

	providerCloser io.Closer
}

// Close releases the index, the model and the database, in that order.
func (c *Components) Close() {
	if c.Manager != nil {
		_ = c.Manager.CloseIndex()
	}
	if c.providerCloser != nil {
		_ = c.providerCloser.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	provider, closer, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding provider unavailable; semantic search disabled",
			zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
		provider, closer = embedding.DisabledProvider{}, nil
	}
	c.Provider, c.providerCloser = provider, closer

	c.Lexical = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	c.Vectors = vector.NewMemoryIndex()

	opts := []indexer.Option{
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Index.Workers),
	}
	if cfg.Index.StrictErrors {
		opts = append(opts, indexer.WithStrictErrors())
	}
	c.Manager = indexer.NewManager(store, store, c.Lexical, c.Vectors, opts...)
	if err := c.Manager.OpenIndex(ctx); err != nil {
		if !c.Manager.IsOpen() {
			c.Close()
			return nil, fmt.Errorf("failed to open search index: %w", err)
		}
		logger.Warn("search index opened with errors", zap.Error(err))
	}

	c.Engine = search.NewEngine(c.Lexical, c.Vectors, store, store, provider,
		search.WithLogger(logger),
		search.WithFusionParams(search.FusionParams{
			K:              cfg.Search.RRFK,
			KeywordWeight:  cfg.Search.KeywordWeightOrDefault(),
			SemanticWeight: cfg.Search.SemanticWeightOrDefault(),
		}),
		search.WithVectorLimit(cfg.Search.VectorLimit),
		search.WithCandidateLimit(cfg.Search.CandidateLimit),
		search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
	)

	logger.Info("components initialized",
		zap.String("database", cfg.Storage.DatabasePath),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("semantic_available", provider.IsAvailable()),
		zap.Int("vectors", c.Vectors.Count()))
	return c, nil
}
