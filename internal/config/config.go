package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for ragd.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Providers   ProvidersConfig   `koanf:"providers"`
	Query       QueryConfig       `koanf:"query"`
	Ingest      IngestConfig      `koanf:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	MetricsPort     int           `koanf:"metrics_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is the provider type: "ollama" or "openai".
	Provider string `koanf:"provider"`
	// BaseURL is the embedding API endpoint.
	// Ollama: http://localhost:11434, OpenAI: https://api.openai.com/v1
	BaseURL string `koanf:"base_url"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// APIKey is required for OpenAI, unused for Ollama.
	APIKey Secret `koanf:"api_key"`
	// Dimension is the embedding vector size. Must match the model output
	// and the collection's configured dimension.
	Dimension int `koanf:"dimension"`
	// Timeout bounds a single embedding call.
	Timeout time.Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is the store backend: "qdrant" or "chromem".
	Provider string `koanf:"provider"`
	// Collection is the collection holding all indexed chunks.
	Collection string `koanf:"collection"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
	Chromem    ChromemConfig `koanf:"chromem"`
	// Timeout bounds a single store call.
	Timeout time.Duration `koanf:"timeout"`
}

// QdrantConfig holds Qdrant gRPC client settings.
type QdrantConfig struct {
	Host string `koanf:"host"`
	// Port is the gRPC port (6334), not the HTTP REST port (6333).
	Port         int           `koanf:"port"`
	UseTLS       bool          `koanf:"use_tls"`
	APIKey       Secret        `koanf:"api_key"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// ChromemConfig holds embedded chromem-go store settings.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// ProvidersConfig describes the completion backends registered at startup.
type ProvidersConfig struct {
	// Default is the id of the provider selected at startup.
	Default string `koanf:"default"`
	// Backends is the ordered list of providers to register.
	Backends []ProviderConfig `koanf:"backends"`
	// Timeout bounds a single completion call.
	Timeout time.Duration `koanf:"timeout"`
}

// ProviderConfig describes one completion backend.
type ProviderConfig struct {
	// ID is the short name used for selection (e.g. "ollama", "gpt-4o").
	ID string `koanf:"id"`
	// Name is the human-readable display name.
	Name string `koanf:"name"`
	// Kind is the adapter family: "ollama", "openai" or "anthropic".
	Kind string `koanf:"kind"`
	// BaseURL overrides the backend endpoint (required for ollama).
	BaseURL string `koanf:"base_url"`
	// Model is the model name passed to the backend.
	Model string `koanf:"model"`
	// APIKey authenticates remote backends.
	APIKey Secret `koanf:"api_key"`
	// ContextWindow is the model's context budget in tokens.
	ContextWindow int `koanf:"context_window"`
}

// QueryConfig holds query-path settings.
type QueryConfig struct {
	// TopK is the default retrieval width when a request omits it.
	TopK int `koanf:"top_k"`
	// MaxTopK caps the retrieval width to bound latency and cost.
	MaxTopK int `koanf:"max_top_k"`
}

// IngestConfig holds ingestion-path settings.
type IngestConfig struct {
	// ChunkSize is the sliding window size in runes.
	ChunkSize int `koanf:"chunk_size"`
	// ChunkOverlap is the backward overlap between neighboring chunks.
	ChunkOverlap int `koanf:"chunk_overlap"`
	// EmbedBatchSize is the number of chunks embedded per provider call.
	EmbedBatchSize int            `koanf:"embed_batch_size"`
	Database       DatabaseConfig `koanf:"database"`
}

// DatabaseConfig holds the optional Postgres document source.
type DatabaseConfig struct {
	// URL is the Postgres connection string (postgres://...).
	URL Secret `koanf:"url"`
	// Table is the table to load rows from.
	Table string `koanf:"table"`
	// TextColumns are combined, in order, into each document's text.
	TextColumns []string `koanf:"text_columns"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "ollama"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:11434"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "llama3"
	}
	if c.Embeddings.Dimension == 0 {
		c.Embeddings.Dimension = 4096 // llama3 embedding size
	}
	if c.Embeddings.Timeout == 0 {
		c.Embeddings.Timeout = 30 * time.Second
	}

	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "qdrant"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "documents"
	}
	if c.VectorStore.Timeout == 0 {
		c.VectorStore.Timeout = 15 * time.Second
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.VectorStore.Qdrant.MaxRetries == 0 {
		c.VectorStore.Qdrant.MaxRetries = 3
	}
	if c.VectorStore.Qdrant.RetryBackoff == 0 {
		c.VectorStore.Qdrant.RetryBackoff = time.Second
	}

	if c.Providers.Timeout == 0 {
		c.Providers.Timeout = 120 * time.Second
	}
	if len(c.Providers.Backends) == 0 {
		c.Providers.Backends = []ProviderConfig{{
			ID:            "ollama",
			Name:          "Ollama (local)",
			Kind:          "ollama",
			BaseURL:       "http://localhost:11434",
			Model:         "llama3",
			ContextWindow: 8192,
		}}
	}
	if c.Providers.Default == "" {
		c.Providers.Default = c.Providers.Backends[0].ID
	}

	if c.Query.TopK == 0 {
		c.Query.TopK = 5
	}
	if c.Query.MaxTopK == 0 {
		c.Query.MaxTopK = 50
	}

	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = 512
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 50
	}
	if c.Ingest.EmbedBatchSize == 0 {
		c.Ingest.EmbedBatchSize = 32
	}
	if c.Ingest.Database.Table == "" {
		c.Ingest.Database.Table = "faq"
	}
	if len(c.Ingest.Database.TextColumns) == 0 {
		c.Ingest.Database.TextColumns = []string{"question", "answer"}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Embeddings.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}
	switch c.VectorStore.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Providers.Backends))
	for _, b := range c.Providers.Backends {
		if b.ID == "" {
			return fmt.Errorf("%w: provider backend missing id", ErrInvalidConfig)
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate provider id %q", ErrInvalidConfig, b.ID)
		}
		seen[b.ID] = true
		switch b.Kind {
		case "ollama", "openai", "anthropic":
		default:
			return fmt.Errorf("%w: provider %q has unknown kind %q", ErrInvalidConfig, b.ID, b.Kind)
		}
	}
	if !seen[c.Providers.Default] {
		return fmt.Errorf("%w: default provider %q not in backends", ErrInvalidConfig, c.Providers.Default)
	}
	if c.Query.TopK <= 0 || c.Query.TopK > c.Query.MaxTopK {
		return fmt.Errorf("%w: top_k must be in [1, %d]", ErrInvalidConfig, c.Query.MaxTopK)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	return nil
}
