package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a Store backend.
type Config struct {
	// Provider is the backend name: "qdrant" (default) or "chromem".
	Provider string

	Qdrant  QdrantConfig
	Chromem ChromemConfig
}

// NewStore creates a Store for the configured provider.
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "", "qdrant":
		store, err := NewQdrantStore(cfg.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("creating qdrant store: %w", err)
		}
		logger.Info("vector store initialized",
			zap.String("provider", "qdrant"),
			zap.String("host", cfg.Qdrant.Host),
			zap.Int("port", cfg.Qdrant.Port))
		return store, nil
	case "chromem":
		store, err := NewChromemStore(cfg.Chromem)
		if err != nil {
			return nil, fmt.Errorf("creating chromem store: %w", err)
		}
		logger.Info("vector store initialized",
			zap.String("provider", "chromem"),
			zap.String("path", cfg.Chromem.Path))
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
