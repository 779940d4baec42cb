package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Empty means in-memory only (useful for tests).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with no external service
// dependency. Entries arrive with precomputed embeddings, so the collection's
// embedding function is never invoked.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig

	// dimensions caches collection name -> vector dimension.
	dimensions sync.Map
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig) (*ChromemStore, error) {
	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB at %s: %w", config.Path, err)
		}
	}
	return &ChromemStore{db: db, config: config}, nil
}

// noEmbeddingFunc rejects any attempt to embed inside the store; the core
// always supplies precomputed vectors.
func noEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("store does not embed; vectors must be precomputed")
}

// EnsureCollection creates the collection if it does not exist.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if _, err := s.db.GetOrCreateCollection(name, nil, noEmbeddingFunc); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.dimensions.Store(name, dimension)
	return nil
}

// Upsert adds entries to the collection.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, entries []Entry) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrEmptyEntries
	}

	col := s.db.GetCollection(collection, noEmbeddingFunc)
	if col == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	dim, ok := s.dimensions.Load(collection)
	if !ok {
		dim = len(entries[0].Vector)
	}
	docs := make([]chromem.Document, len(entries))
	for i, entry := range entries {
		if len(entry.Vector) != dim.(int) {
			return fmt.Errorf("%w: entry %s has dimension %d, collection %s expects %d",
				ErrDimensionMismatch, entry.ID, len(entry.Vector), collection, dim)
		}
		metadata := map[string]string{
			"source":      entry.Payload.Source,
			"chunk_index": strconv.Itoa(entry.Payload.ChunkIndex),
		}
		for k, v := range entry.Payload.Extra {
			metadata[k] = v
		}
		docs[i] = chromem.Document{
			ID:        entry.ID,
			Content:   entry.Payload.Text,
			Embedding: entry.Vector,
			Metadata:  metadata,
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding %d documents to collection %s: %w", len(docs), collection, err)
	}
	return nil
}

// Search returns the k nearest entries by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]ScoredEntry, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	col := s.db.GetCollection(collection, noEmbeddingFunc)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	// chromem rejects nResults > document count; an empty collection is a
	// valid zero-hit search, not an error.
	count := col.Count()
	if count == 0 {
		return []ScoredEntry{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	hits := make([]ScoredEntry, len(results))
	for i, res := range results {
		payload := Payload{
			Text:   res.Content,
			Source: res.Metadata["source"],
		}
		if idx, err := strconv.Atoi(res.Metadata["chunk_index"]); err == nil {
			payload.ChunkIndex = idx
		}
		for key, val := range res.Metadata {
			if key == "source" || key == "chunk_index" {
				continue
			}
			if payload.Extra == nil {
				payload.Extra = make(map[string]string)
			}
			payload.Extra[key] = val
		}
		hits[i] = ScoredEntry{
			Entry: Entry{ID: res.ID, Payload: payload},
			Score: res.Similarity,
		}
	}
	return hits, nil
}

// CollectionInfo returns live collection metadata.
func (s *ChromemStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	col := s.db.GetCollection(name, noEmbeddingFunc)
	if col == nil {
		return nil, ErrCollectionNotFound
	}
	count := uint64(col.Count())
	info := &CollectionInfo{
		Name:        name,
		VectorCount: count,
		PointCount:  count,
		Status:      "green",
	}
	if dim, ok := s.dimensions.Load(name); ok {
		info.Dimension = dim.(int)
	}
	return info, nil
}

// HealthCheck always succeeds for the embedded store.
func (s *ChromemStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op; chromem persists synchronously.
func (s *ChromemStore) Close() error {
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
