package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DreamCats/corep/cmd/corep/internal"
	"github.com/DreamCats/corep/internal/config"
	"github.com/DreamCats/corep/internal/corpus"
	"github.com/DreamCats/corep/internal/embedding"
	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/store"
	"github.com/DreamCats/corep/internal/vectorcache"
)

// app holds everything a retrieval-backed command needs
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	corpus   *corpus.Corpus
	db       *store.DB
	store    *store.VectorCacheStore
	embedder *embedding.Service // nil when no provider is configured
	cache    *vectorcache.Cache
	engine   *retrieval.Engine
}

// newApp loads the corpus, opens the vector cache and builds the retrieval engine
func newApp(ctx context.Context, cfg *config.Config, progress bool) (*app, error) {
	c, err := corpus.Load(cfg.Corpus.Path, cfg.Corpus.Exclude...)
	if err != nil {
		return nil, err
	}
	logger.Debug("corpus loaded", zap.String("path", cfg.Corpus.Path), zap.Int("chunks", c.Len()))

	dbPath := cfg.Cache.Path
	if dbPath == "" {
		dbPath, err = internal.DefaultCachePath(cfg.Corpus.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to determine cache path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector cache: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		corpus: c,
		db:     db,
		store:  store.NewVectorCacheStore(db),
	}

	svc, err := embedding.NewService(ctx, &cfg.Embedding, embedding.Options{
		BatchSize:   cfg.Cache.BatchSize,
		Concurrency: cfg.Cache.Concurrency,
		Logger:      logger,
	})
	switch {
	case err == nil:
		a.embedder = svc
	case errors.Is(err, embedding.ErrNotConfigured):
		logger.Info("no embedding provider configured, using keyword retrieval", zap.String("provider", cfg.Embedding.Provider))
	default:
		logger.Warn("embedding provider unavailable, using keyword retrieval", zap.Error(err))
	}

	// A nil *Service must not become a non-nil interface
	var cacheEmbedder vectorcache.Embedder
	var queryEmbedder retrieval.QueryEmbedder
	if a.embedder != nil {
		cacheEmbedder = a.embedder
		queryEmbedder = a.embedder
	}

	a.cache = vectorcache.New(c, a.store, cacheEmbedder, vectorcache.Options{
		Model:    cfg.Embedding.ModelName(),
		Logger:   logger,
		Progress: internal.NewCacheProgress(progress),
	})

	synonyms, err := retrieval.LoadSynonymsFile(cfg.Retrieval.SynonymsPath)
	if err != nil {
		logger.Warn("failed to load synonyms, using defaults", zap.Error(err))
		synonyms = retrieval.NewSynonymsExpander(retrieval.DefaultSynonyms)
	}

	var engineCache *vectorcache.Cache
	if a.embedder != nil {
		engineCache = a.cache
	}
	a.engine = retrieval.New(c, engineCache, queryEmbedder, retrieval.Options{
		DefaultTopK: cfg.Retrieval.DefaultTopK,
		Synonyms:    synonyms,
		Logger:      logger,
	})

	return a, nil
}

// Close releases the index and the database
func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		a.logger.Debug("failed to close full-text index", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Debug("failed to close vector cache", zap.Error(err))
	}
}

// strategyFlag resolves the --strategy flag, falling back to the configured default
func strategyFlag(flag string, cfg *config.Config) (retrieval.Strategy, error) {
	if flag == "" {
		flag = cfg.Retrieval.Strategy
	}
	return retrieval.ParseStrategy(flag)
}
