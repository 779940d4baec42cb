package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// fakeEmbedder returns fixed-dimension vectors and fails for texts containing
// the failOn marker.
type fakeEmbedder struct {
	dim    int
	failOn string
	calls  int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, errors.New("embedding backend exploded")
		}
		vectors[i] = make([]float32, f.dim)
		vectors[i][0] = float32(len(text))
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Close() error   { return nil }

// fakeStore records upserted entries in memory.
type fakeStore struct {
	mu          sync.Mutex
	entries     map[string][]vectorstore.Entry
	upsertErr   error
	ensureErr   error
	gotDeadline bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]vectorstore.Entry)}
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return f.ensureErr
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, entries []vectorstore.Entry) error {
	_, f.gotDeadline = ctx.Deadline()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[collection] = append(f.entries[collection], entries...)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]vectorstore.ScoredEntry, error) {
	return nil, nil
}

func (f *fakeStore) CollectionInfo(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := uint64(len(f.entries[name]))
	return &vectorstore.CollectionInfo{Name: name, VectorCount: count, PointCount: count, Status: "green"}, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                          { return nil }

func newTestPipeline(t *testing.T, embedder *fakeEmbedder, store *fakeStore) *Pipeline {
	t.Helper()
	chunker, err := NewChunker(20, 5)
	require.NoError(t, err)
	p, err := NewPipeline(embedder, store, chunker, Options{Collection: "documents", BatchSize: 2}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestPipelineIngest(t *testing.T) {
	t.Run("indexes all documents", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		docs := []Document{
			{Source: "a.txt", Text: strings.Repeat("alpha ", 10)},
			{Source: "b.txt", Text: "short"},
		}
		report, err := p.Ingest(context.Background(), docs, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, report.DocumentsIngested)
		assert.Equal(t, 0, report.DocumentsFailed)
		assert.Empty(t, report.Failures)
		assert.Equal(t, report.ChunksIndexed, len(store.entries["documents"]))
		assert.Greater(t, report.ChunksIndexed, 2)
	})

	t.Run("one bad document does not abort the run", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3, failOn: "poison"}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		docs := []Document{
			{Source: "good1.txt", Text: "fine content"},
			{Source: "bad.txt", Text: "poison content"},
			{Source: "good2.txt", Text: "more fine content"},
		}
		report, err := p.Ingest(context.Background(), docs, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, report.DocumentsIngested)
		assert.Equal(t, 1, report.DocumentsFailed)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, "bad.txt", report.Failures[0].Source)
		assert.Contains(t, report.Failures[0].Reason, "embedding")
	})

	t.Run("pre-scan failures appear in the report", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		pre := []Failure{{Source: "binary.pdf", Reason: "unsupported document format: .pdf"}}
		report, err := p.Ingest(context.Background(), []Document{{Source: "a.txt", Text: "ok"}}, pre)
		require.NoError(t, err)

		assert.Equal(t, 1, report.DocumentsIngested)
		assert.Equal(t, 1, report.DocumentsFailed)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, "binary.pdf", report.Failures[0].Source)
	})

	t.Run("re-ingestion appends instead of replacing", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		docs := []Document{{Source: "a.txt", Text: "same content"}}
		first, err := p.Ingest(context.Background(), docs, nil)
		require.NoError(t, err)
		second, err := p.Ingest(context.Background(), docs, nil)
		require.NoError(t, err)

		assert.Equal(t, first.ChunksIndexed+second.ChunksIndexed, len(store.entries["documents"]))

		ids := make(map[string]bool)
		for _, entry := range store.entries["documents"] {
			assert.False(t, ids[entry.ID], "point IDs must be unique across runs")
			ids[entry.ID] = true
		}
	})

	t.Run("nothing to ingest is an error", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		_, err := p.Ingest(context.Background(), nil, nil)
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("late batch failure leaves no partial document", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3, failOn: "poison"}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		// Three chunks with the failure marker only in the last one, so the
		// first batch embeds fine and the second fails.
		text := strings.Repeat("a", 40) + "poison"
		chunks := p.chunker.Split(text)
		require.Len(t, chunks, 3)
		require.NotContains(t, chunks[0], "poison")
		require.NotContains(t, chunks[1], "poison")
		require.Contains(t, chunks[2], "poison")

		report, err := p.Ingest(context.Background(), []Document{
			{Source: "tail.txt", Text: text},
			{Source: "ok.txt", Text: "fine content"},
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, 1, report.DocumentsIngested)
		assert.Equal(t, 1, report.DocumentsFailed)
		for _, entry := range store.entries["documents"] {
			assert.NotEqual(t, "tail.txt", entry.Payload.Source,
				"failed document must leave no entries behind")
		}
		assert.Equal(t, report.ChunksIndexed, len(store.entries["documents"]))
	})

	t.Run("upsert failure is a document failure", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		store.upsertErr = errors.New("store down")
		p := newTestPipeline(t, embedder, store)

		report, err := p.Ingest(context.Background(), []Document{{Source: "a.txt", Text: "ok"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.DocumentsIngested)
		assert.Equal(t, 1, report.DocumentsFailed)
	})

	t.Run("store calls carry the configured timeout", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		chunker, err := NewChunker(20, 5)
		require.NoError(t, err)
		p, err := NewPipeline(embedder, store, chunker, Options{
			Collection:   "documents",
			BatchSize:    2,
			StoreTimeout: time.Minute,
		}, zap.NewNop())
		require.NoError(t, err)

		_, err = p.Ingest(context.Background(), []Document{{Source: "a.txt", Text: "ok"}}, nil)
		require.NoError(t, err)
		assert.True(t, store.gotDeadline, "upsert must run under the store timeout")
	})

	t.Run("chunk payloads carry source and chunk index", func(t *testing.T) {
		embedder := &fakeEmbedder{dim: 3}
		store := newFakeStore()
		p := newTestPipeline(t, embedder, store)

		text := strings.Repeat("x", 50)
		_, err := p.Ingest(context.Background(), []Document{{
			Source:   "doc.md",
			Text:     text,
			Metadata: map[string]string{"format": "md"},
		}}, nil)
		require.NoError(t, err)

		entries := store.entries["documents"]
		require.NotEmpty(t, entries)
		for i, entry := range entries {
			assert.Equal(t, "doc.md", entry.Payload.Source)
			assert.Equal(t, i, entry.Payload.ChunkIndex)
			assert.Equal(t, "md", entry.Payload.Extra["format"])
			assert.NotEmpty(t, entry.Payload.Text)
			assert.Len(t, entry.Vector, 3)
		}
	})
}
