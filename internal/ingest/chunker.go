// Package ingest turns source documents into embedded chunks in the vector
// store. It covers filesystem scanning, database row loading, text chunking
// and the pipeline that batches embeddings and upserts with per-document
// failure recovery.
package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for ingestion.
var (
	// ErrInvalidChunking indicates an invalid size/overlap combination.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrUnsupportedFormat is recorded for documents the scanner cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNoDocuments indicates the source yielded nothing to ingest.
	ErrNoDocuments = errors.New("no documents found")
)

// Chunker splits text into overlapping windows. Windows are measured in
// runes, so multi-byte text never splits mid-character. Consecutive chunks
// share Overlap runes, keeping sentences that straddle a boundary retrievable
// from either side.
type Chunker struct {
	// Size is the window length in runes.
	Size int
	// Overlap is how many runes consecutive chunks share. Must be < Size.
	Overlap int
}

// NewChunker validates the parameters and returns a Chunker.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got %d with size %d",
			ErrInvalidChunking, overlap, size)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// Split returns the chunks of text in document order. Whitespace-only input
// yields no chunks. Text shorter than the window is a single chunk.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{text}
	}

	step := c.Size - c.Overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
