package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Embeddings.BaseURL)
	assert.Equal(t, "llama3", cfg.Embeddings.Model)
	assert.Equal(t, 4096, cfg.Embeddings.Dimension)

	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "documents", cfg.VectorStore.Collection)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)

	require.Len(t, cfg.Providers.Backends, 1)
	assert.Equal(t, "ollama", cfg.Providers.Default)
	assert.Equal(t, 8192, cfg.Providers.Backends[0].ContextWindow)

	assert.Equal(t, 5, cfg.Query.TopK)
	assert.Equal(t, 50, cfg.Query.MaxTopK)

	assert.Equal(t, 512, cfg.Ingest.ChunkSize)
	assert.Equal(t, 50, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, "faq", cfg.Ingest.Database.Table)
	assert.Equal(t, []string{"question", "answer"}, cfg.Ingest.Database.TextColumns)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("defaults validate", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad embeddings provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"zero dimension", func(c *Config) { c.Embeddings.Dimension = 0 }},
		{"bad store provider", func(c *Config) { c.VectorStore.Provider = "pinecone" }},
		{"empty collection", func(c *Config) { c.VectorStore.Collection = "" }},
		{"backend missing id", func(c *Config) { c.Providers.Backends[0].ID = "" }},
		{"duplicate backend ids", func(c *Config) {
			c.Providers.Backends = append(c.Providers.Backends, c.Providers.Backends[0])
		}},
		{"bad backend kind", func(c *Config) { c.Providers.Backends[0].Kind = "gemini" }},
		{"default not registered", func(c *Config) { c.Providers.Default = "ghost" }},
		{"top_k above cap", func(c *Config) { c.Query.TopK = 100 }},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"overlap not below size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("yaml file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
vectorstore:
  provider: chromem
  collection: faq
query:
  top_k: 3
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "chromem", cfg.VectorStore.Provider)
		assert.Equal(t, "faq", cfg.VectorStore.Collection)
		assert.Equal(t, 3, cfg.Query.TopK)
		// untouched fields keep defaults
		assert.Equal(t, "llama3", cfg.Embeddings.Model)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

		t.Setenv("SERVER_PORT", "9100")
		t.Setenv("EMBEDDINGS_MODEL", "nomic-embed-text")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 8000, cfg.Server.Port)
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: shout\n"), 0o644))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"EMBEDDINGS_BASE_URL", "embeddings.base_url"},
		{"VECTORSTORE_COLLECTION", "vectorstore.collection"},
		{"PATH", ""},
		{"HOME", ""},
		{"LD_LIBRARY_PATH", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransform(tt.in), tt.in)
	}
}
