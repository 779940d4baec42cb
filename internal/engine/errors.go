// Package engine orchestrates the query path: embed the question, retrieve
// nearest chunks, assemble a token-budgeted context and generate an answer
// with the selected completion backend.
package engine

import (
	"errors"
	"fmt"
)

// Stage names the query pipeline phase an error occurred in.
type Stage string

// Query pipeline stages, in execution order.
const (
	StageEmbedding  Stage = "embedding_query"
	StageRetrieving Stage = "retrieving"
	StageAssembling Stage = "assembling_context"
	StageGenerating Stage = "generating"
)

// Sentinel errors for the query path.
var (
	// ErrEmptyQuestion is returned for blank or whitespace-only questions.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrEmbeddingUnavailable indicates the embedding backend failed.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrRetrievalUnavailable indicates the vector store failed.
	ErrRetrievalUnavailable = errors.New("vector store unavailable")

	// ErrGenerationFailed indicates the completion backend failed.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrCollectionUnavailable indicates collection stats could not be read.
	ErrCollectionUnavailable = errors.New("collection unavailable")
)

// StageError tags a failure with the pipeline stage and provider it occurred
// in, so callers can report where a query died without parsing messages.
type StageError struct {
	// Stage is the phase that failed.
	Stage Stage
	// Provider is the backend involved, when one was resolved.
	Provider string
	// Retryable reports whether the failure looked transient.
	Retryable bool
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("stage %s (provider %s): %v", e.Stage, e.Provider, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// newStageError wraps err with stage context.
func newStageError(stage Stage, providerID string, retryable bool, err error) *StageError {
	return &StageError{Stage: stage, Provider: providerID, Retryable: retryable, Err: err}
}
