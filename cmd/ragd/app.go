package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/engine"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/provider"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// app wires the shared dependencies used by the serve and ingest commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder embeddings.Provider
	store    vectorstore.Store
	registry *provider.Registry
	engine   *engine.Engine
	pipeline *ingest.Pipeline
}

// buildApp loads configuration and constructs the full dependency graph.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider:  cfg.Embeddings.Provider,
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
		Timeout:   cfg.Embeddings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	store, err := vectorstore.NewStore(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Qdrant: vectorstore.QdrantConfig{
			Host:         cfg.VectorStore.Qdrant.Host,
			Port:         cfg.VectorStore.Qdrant.Port,
			UseTLS:       cfg.VectorStore.Qdrant.UseTLS,
			APIKey:       cfg.VectorStore.Qdrant.APIKey.Value(),
			MaxRetries:   cfg.VectorStore.Qdrant.MaxRetries,
			RetryBackoff: cfg.VectorStore.Qdrant.RetryBackoff,
		},
		Chromem: vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}

	registry := provider.NewRegistry(logger)
	for _, backend := range cfg.Providers.Backends {
		p, err := provider.New(backend)
		if err != nil {
			return nil, fmt.Errorf("initializing provider %s: %w", backend.ID, err)
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	if err := registry.Select(cfg.Providers.Default); err != nil {
		return nil, err
	}

	eng, err := engine.New(embedder, store, registry, engine.Options{
		Collection:      cfg.VectorStore.Collection,
		TopK:            cfg.Query.TopK,
		MaxTopK:         cfg.Query.MaxTopK,
		GenerateTimeout: cfg.Providers.Timeout,
		StoreTimeout:    cfg.VectorStore.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	pipeline, err := ingest.NewPipeline(embedder, store, chunker, ingest.Options{
		Collection:   cfg.VectorStore.Collection,
		BatchSize:    cfg.Ingest.EmbedBatchSize,
		StoreTimeout: cfg.VectorStore.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		store:    store,
		registry: registry,
		engine:   eng,
		pipeline: pipeline,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("closing embedder", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
