// Package vectorstore defines the interface for vector storage operations.
//
// The core embeds text itself and hands the store finished vectors; the store
// is only responsible for persistence, nearest-neighbor search and collection
// metadata. Implementations:
//   - QdrantStore: external Qdrant via gRPC (default)
//   - ChromemStore: embedded chromem-go, no external service
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrEmptyEntries indicates an upsert with no entries.
	ErrEmptyEntries = errors.New("empty or nil entries")

	// ErrDimensionMismatch is returned when an entry's vector dimension does
	// not match the collection's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates the store backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Payload is the data stored alongside each vector.
type Payload struct {
	// Text is the chunk text used as grounding context.
	Text string `json:"text"`
	// Source identifies the originating document (path or table:id).
	Source string `json:"source"`
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunk_index"`
	// Extra carries additional string metadata (e.g. format).
	Extra map[string]string `json:"extra,omitempty"`
}

// Entry is the persisted unit: an identifier, its embedding and the payload.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredEntry is a search hit with its similarity score (higher = closer).
type ScoredEntry struct {
	Entry
	Score float32
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`
	// VectorCount is the number of stored vectors.
	VectorCount uint64 `json:"vectors_count"`
	// PointCount is the number of stored points.
	PointCount uint64 `json:"points_count"`
	// Status is the collection health status reported by the backend.
	Status string `json:"status"`
	// Dimension is the vector dimensionality, 0 when unknown.
	Dimension int `json:"dimension,omitempty"`
}

// Store is the interface for vector storage operations.
//
// All methods honor context cancellation. Writes are eventually visible to
// concurrent reads; a search issued mid-upsert may miss just-added entries
// but never observes a partially written one.
type Store interface {
	// EnsureCollection creates the collection with the given vector
	// dimension if it does not yet exist. Idempotent.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert adds entries to the collection. Entry vectors must match the
	// collection dimension; mismatches fail with ErrDimensionMismatch
	// before anything is written.
	Upsert(ctx context.Context, collection string, entries []Entry) error

	// Search returns up to k entries nearest to the query vector, ordered
	// by descending similarity score. An empty collection yields an empty
	// result, not an error.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]ScoredEntry, error)

	// CollectionInfo returns live collection metadata. Never cached.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close closes the store connection and releases resources.
	Close() error
}

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}
