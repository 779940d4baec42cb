package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/provider"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// fakeEmbedder embeds everything as a constant vector. failures counts down:
// while positive, calls fail with failErr (or a generic error).
type fakeEmbedder struct {
	dim      int
	failures int
	failErr  error
	calls    int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.EmbedQuery(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errors.New("embedding backend down")
	}
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Close() error   { return nil }

// fakeStore serves canned search hits.
type fakeStore struct {
	hits        []vectorstore.ScoredEntry
	searchErr   error
	info        *vectorstore.CollectionInfo
	infoErr     error
	gotK        int
	gotDeadline bool
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, entries []vectorstore.Entry) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]vectorstore.ScoredEntry, error) {
	f.gotK = k
	_, f.gotDeadline = ctx.Deadline()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeStore) CollectionInfo(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                          { return nil }

// stubBackend records the context block it was asked with. failures counts
// down like fakeEmbedder.
type stubBackend struct {
	id         string
	answer     string
	failures   int
	gotContext string
}

func (s *stubBackend) Complete(ctx context.Context, contextBlock, question string) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", errors.New("model overloaded")
	}
	s.gotContext = contextBlock
	return s.answer, nil
}

func (s *stubBackend) Descriptor() provider.Descriptor {
	return provider.Descriptor{ID: s.id, Name: s.id, Kind: provider.KindOllama, Model: "m", ContextWindow: 8192}
}

func newTestEngine(t *testing.T, store *fakeStore, backends ...*stubBackend) *Engine {
	t.Helper()
	registry := provider.NewRegistry(zap.NewNop())
	for _, b := range backends {
		require.NoError(t, registry.Register(b))
	}
	eng, err := New(&fakeEmbedder{dim: 4}, store, registry, Options{
		Collection:   "documents",
		TopK:         5,
		MaxTopK:      10,
		RetryBackoff: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return eng
}

func someHits() []vectorstore.ScoredEntry {
	return []vectorstore.ScoredEntry{
		{Entry: vectorstore.Entry{Payload: vectorstore.Payload{Text: "Paris is the capital of France.", Source: "geo.txt", ChunkIndex: 0}}, Score: 0.95},
		{Entry: vectorstore.Entry{Payload: vectorstore.Payload{Text: "France is in Europe.", Source: "geo.txt", ChunkIndex: 1}}, Score: 0.80},
	}
}

func TestEngineAsk(t *testing.T) {
	t.Run("answers with attributed sources", func(t *testing.T) {
		backend := &stubBackend{id: "ollama", answer: "Paris."}
		store := &fakeStore{hits: someHits()}
		eng := newTestEngine(t, store, backend)

		resp, err := eng.Ask(context.Background(), QueryRequest{Question: "What is the capital of France?"})
		require.NoError(t, err)

		assert.Equal(t, "Paris.", resp.Answer)
		assert.Equal(t, "ollama", resp.Provider)
		require.Len(t, resp.Sources, 2)
		assert.Equal(t, "geo.txt", resp.Sources[0].Source)
		assert.Equal(t, float32(0.95), resp.Sources[0].Score)
		assert.False(t, resp.Truncated)
		assert.GreaterOrEqual(t, resp.Duration, time.Duration(0))
		assert.Contains(t, backend.gotContext, "Paris is the capital")
	})

	t.Run("empty question is rejected", func(t *testing.T) {
		eng := newTestEngine(t, &fakeStore{}, &stubBackend{id: "ollama", answer: "x"})

		_, err := eng.Ask(context.Background(), QueryRequest{Question: "   "})
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("empty index answers without sources", func(t *testing.T) {
		backend := &stubBackend{id: "ollama", answer: "I don't know."}
		eng := newTestEngine(t, &fakeStore{}, backend)

		resp, err := eng.Ask(context.Background(), QueryRequest{Question: "anything?"})
		require.NoError(t, err)
		assert.Empty(t, resp.Sources)
		assert.Empty(t, backend.gotContext)
		assert.Equal(t, "I don't know.", resp.Answer)
	})

	t.Run("top_k is capped", func(t *testing.T) {
		store := &fakeStore{hits: someHits()}
		eng := newTestEngine(t, store, &stubBackend{id: "ollama", answer: "x"})

		_, err := eng.Ask(context.Background(), QueryRequest{Question: "q", TopK: 100})
		require.NoError(t, err)
		assert.Equal(t, 10, store.gotK)
	})

	t.Run("unknown provider override fails before any work", func(t *testing.T) {
		eng := newTestEngine(t, &fakeStore{}, &stubBackend{id: "ollama", answer: "x"})

		_, err := eng.Ask(context.Background(), QueryRequest{Question: "q", Provider: "nope"})
		assert.ErrorIs(t, err, provider.ErrUnknownProvider)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageGenerating, stageErr.Stage)
		assert.False(t, stageErr.Retryable)
	})

	t.Run("provider override wins for one request", func(t *testing.T) {
		a := &stubBackend{id: "a", answer: "from a"}
		b := &stubBackend{id: "b", answer: "from b"}
		eng := newTestEngine(t, &fakeStore{hits: someHits()}, a, b)

		resp, err := eng.Ask(context.Background(), QueryRequest{Question: "q", Provider: "b"})
		require.NoError(t, err)
		assert.Equal(t, "b", resp.Provider)
		assert.Equal(t, "from b", resp.Answer)

		resp, err = eng.Ask(context.Background(), QueryRequest{Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, "a", resp.Provider)
	})

	t.Run("transient embedding failure is retried once", func(t *testing.T) {
		registry := provider.NewRegistry(zap.NewNop())
		require.NoError(t, registry.Register(&stubBackend{id: "ollama", answer: "ok"}))
		embedder := &fakeEmbedder{dim: 4, failures: 1}
		eng, err := New(embedder, &fakeStore{}, registry, Options{
			Collection:   "documents",
			RetryBackoff: time.Millisecond,
		}, zap.NewNop())
		require.NoError(t, err)

		resp, err := eng.Ask(context.Background(), QueryRequest{Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Answer)
	})

	t.Run("persistent embedding failure surfaces stage error", func(t *testing.T) {
		registry := provider.NewRegistry(zap.NewNop())
		require.NoError(t, registry.Register(&stubBackend{id: "ollama", answer: "ok"}))
		embedder := &fakeEmbedder{dim: 4, failures: 10}
		eng, err := New(embedder, &fakeStore{}, registry, Options{
			Collection:   "documents",
			RetryBackoff: time.Millisecond,
		}, zap.NewNop())
		require.NoError(t, err)

		_, err = eng.Ask(context.Background(), QueryRequest{Question: "q"})
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageEmbedding, stageErr.Stage)
		assert.True(t, stageErr.Retryable)
	})

	t.Run("dimension mismatch is not retried", func(t *testing.T) {
		registry := provider.NewRegistry(zap.NewNop())
		require.NoError(t, registry.Register(&stubBackend{id: "ollama", answer: "ok"}))
		embedder := &fakeEmbedder{
			dim:      4,
			failures: 1,
			failErr:  fmt.Errorf("%w: got dimension 8, expected 4", embeddings.ErrDimensionMismatch),
		}
		eng, err := New(embedder, &fakeStore{}, registry, Options{
			Collection:   "documents",
			RetryBackoff: time.Millisecond,
		}, zap.NewNop())
		require.NoError(t, err)

		_, err = eng.Ask(context.Background(), QueryRequest{Question: "q"})
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
		assert.Equal(t, 1, embedder.calls)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageEmbedding, stageErr.Stage)
		assert.False(t, stageErr.Retryable)
	})

	t.Run("store calls carry the configured timeout", func(t *testing.T) {
		registry := provider.NewRegistry(zap.NewNop())
		require.NoError(t, registry.Register(&stubBackend{id: "ollama", answer: "ok"}))
		store := &fakeStore{hits: someHits()}
		eng, err := New(&fakeEmbedder{dim: 4}, store, registry, Options{
			Collection:   "documents",
			StoreTimeout: time.Minute,
		}, zap.NewNop())
		require.NoError(t, err)

		_, err = eng.Ask(context.Background(), QueryRequest{Question: "q"})
		require.NoError(t, err)
		assert.True(t, store.gotDeadline, "search must run under the store timeout")
	})

	t.Run("retrieval failure surfaces stage error", func(t *testing.T) {
		store := &fakeStore{searchErr: errors.New("qdrant down")}
		eng := newTestEngine(t, store, &stubBackend{id: "ollama", answer: "x"})

		_, err := eng.Ask(context.Background(), QueryRequest{Question: "q"})
		assert.ErrorIs(t, err, ErrRetrievalUnavailable)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageRetrieving, stageErr.Stage)
	})

	t.Run("transient generation failure is retried once", func(t *testing.T) {
		backend := &stubBackend{id: "ollama", answer: "recovered", failures: 1}
		eng := newTestEngine(t, &fakeStore{hits: someHits()}, backend)

		resp, err := eng.Ask(context.Background(), QueryRequest{Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, "recovered", resp.Answer)
	})

	t.Run("persistent generation failure names the provider", func(t *testing.T) {
		backend := &stubBackend{id: "ollama", answer: "x", failures: 10}
		eng := newTestEngine(t, &fakeStore{hits: someHits()}, backend)

		_, err := eng.Ask(context.Background(), QueryRequest{Question: "q"})
		assert.ErrorIs(t, err, ErrGenerationFailed)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageGenerating, stageErr.Stage)
		assert.Equal(t, "ollama", stageErr.Provider)
	})
}

func TestEngineStats(t *testing.T) {
	t.Run("passes through collection info", func(t *testing.T) {
		store := &fakeStore{info: &vectorstore.CollectionInfo{
			Name:        "documents",
			VectorCount: 42,
			PointCount:  42,
			Status:      "green",
		}}
		eng := newTestEngine(t, store, &stubBackend{id: "ollama", answer: "x"})

		info, err := eng.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(42), info.PointCount)
		assert.Equal(t, "green", info.Status)
	})

	t.Run("wraps store failure", func(t *testing.T) {
		store := &fakeStore{infoErr: errors.New("unreachable")}
		eng := newTestEngine(t, store, &stubBackend{id: "ollama", answer: "x"})

		_, err := eng.Stats(context.Background())
		assert.ErrorIs(t, err, ErrCollectionUnavailable)
	})
}

func TestEngineProviderManagement(t *testing.T) {
	a := &stubBackend{id: "a", answer: "from a"}
	b := &stubBackend{id: "b", answer: "from b"}
	eng := newTestEngine(t, &fakeStore{}, a, b)

	assert.Equal(t, "a", eng.CurrentProvider())
	require.Len(t, eng.Providers(), 2)

	require.NoError(t, eng.SelectProvider("b"))
	assert.Equal(t, "b", eng.CurrentProvider())

	assert.ErrorIs(t, eng.SelectProvider("nope"), provider.ErrUnknownProvider)
	assert.Equal(t, "b", eng.CurrentProvider())
}
