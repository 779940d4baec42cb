package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/provider"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Options tune the query path.
type Options struct {
	// Collection is the vector collection queried.
	Collection string
	// TopK is the default retrieval width when a request omits it.
	TopK int
	// MaxTopK caps the retrieval width.
	MaxTopK int
	// GenerateTimeout bounds a single completion call.
	GenerateTimeout time.Duration
	// StoreTimeout bounds a single vector store call.
	StoreTimeout time.Duration
	// RetryBackoff is the pause before the single retry of a transient
	// embed or generate failure.
	RetryBackoff time.Duration
}

// QueryRequest is one question against the index.
type QueryRequest struct {
	// Question is the user's question.
	Question string `json:"question"`
	// TopK overrides the default retrieval width when positive.
	TopK int `json:"top_k,omitempty"`
	// Provider overrides the current completion backend for this request.
	Provider string `json:"provider,omitempty"`
}

// QueryResponse is the attributed answer.
type QueryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Provider is the backend that produced the answer.
	Provider string `json:"provider"`
	// Sources attributes the context chunks, highest score first.
	Sources []Source `json:"sources"`
	// Truncated reports whether retrieved chunks were dropped for budget.
	Truncated bool `json:"truncated"`
	// Duration is the end-to-end query time.
	Duration time.Duration `json:"duration"`
}

// Engine runs the retrieve-and-generate query path.
type Engine struct {
	embedder embeddings.Provider
	store    vectorstore.Store
	registry *provider.Registry
	opts     Options
	counter  *tokenCounter
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates an Engine.
func New(embedder embeddings.Provider, store vectorstore.Store, registry *provider.Registry, opts Options, logger *zap.Logger) (*Engine, error) {
	if err := vectorstore.ValidateCollectionName(opts.Collection); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 50
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		registry: registry,
		opts:     opts,
		counter:  newTokenCounter(),
		logger:   logger,
		tracer:   otel.Tracer("ragd.engine"),
	}, nil
}

// Ask answers a question grounded in the indexed documents.
//
// The pipeline runs embed, retrieve, assemble, generate. The completion
// backend is resolved once up front and held for the whole request, so a
// concurrent backend switch never affects a query already in flight. An empty
// index is not an error: the model answers without context and the response
// carries no sources.
func (e *Engine) Ask(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Ask")
	defer span.End()

	start := time.Now()

	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.opts.TopK
	}
	if topK > e.opts.MaxTopK {
		topK = e.opts.MaxTopK
	}
	span.SetAttributes(
		attribute.String("collection", e.opts.Collection),
		attribute.Int("top_k", topK),
	)

	backend, err := e.registry.Resolve(req.Provider)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, newStageError(StageGenerating, req.Provider, false, err)
	}
	desc := backend.Descriptor()
	span.SetAttributes(attribute.String("provider", desc.ID))

	vector, err := e.embedQuestion(ctx, req.Question)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits, err := e.search(ctx, vector, topK)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, newStageError(StageRetrieving, "", vectorstore.IsTransientError(err),
			fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err))
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))

	asm := assembleContext(hits, desc.ContextWindow, e.counter)

	answer, err := e.generate(ctx, backend, asm.contextBlock, req.Question)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &QueryResponse{
		Answer:    answer,
		Provider:  desc.ID,
		Sources:   asm.sources,
		Truncated: asm.truncated,
		Duration:  time.Since(start),
	}
	e.logger.Info("query answered",
		zap.String("provider", desc.ID),
		zap.Int("sources", len(resp.Sources)),
		zap.Bool("truncated", resp.Truncated),
		zap.Duration("duration", resp.Duration))
	return resp, nil
}

// embedQuestion embeds the question, retrying once on transient failure.
func (e *Engine) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err == nil {
		return vector, nil
	}
	if !isTransient(ctx, err) {
		return nil, newStageError(StageEmbedding, "", false,
			fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err))
	}

	e.logger.Warn("query embedding failed, retrying", zap.Error(err))
	select {
	case <-time.After(e.opts.RetryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vector, err = e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, newStageError(StageEmbedding, "", true,
			fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err))
	}
	return vector, nil
}

// generate calls the completion backend, retrying once on transient failure.
// The backend reference stays fixed across the retry.
func (e *Engine) generate(ctx context.Context, backend provider.ModelProvider, contextBlock, question string) (string, error) {
	id := backend.Descriptor().ID

	answer, err := e.complete(ctx, backend, contextBlock, question)
	if err == nil {
		return answer, nil
	}
	if !isTransient(ctx, err) {
		return "", newStageError(StageGenerating, id, false,
			fmt.Errorf("%w: %v", ErrGenerationFailed, err))
	}

	e.logger.Warn("generation failed, retrying",
		zap.String("provider", id),
		zap.Error(err))
	select {
	case <-time.After(e.opts.RetryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	answer, err = e.complete(ctx, backend, contextBlock, question)
	if err != nil {
		return "", newStageError(StageGenerating, id, true,
			fmt.Errorf("%w: %v", ErrGenerationFailed, err))
	}
	return answer, nil
}

func (e *Engine) complete(ctx context.Context, backend provider.ModelProvider, contextBlock, question string) (string, error) {
	if e.opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.GenerateTimeout)
		defer cancel()
	}
	return backend.Complete(ctx, contextBlock, question)
}

// search runs a bounded similarity search against the store.
func (e *Engine) search(ctx context.Context, vector []float32, topK int) ([]vectorstore.ScoredEntry, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.store.Search(ctx, e.opts.Collection, vector, topK)
}

// storeContext applies the configured store timeout, when set.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.opts.StoreTimeout)
}

// isTransient reports whether a failed call is worth one retry. Caller
// cancellation and input validation failures are not.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, embeddings.ErrEmptyInput) || errors.Is(err, embeddings.ErrInvalidConfig) {
		return false
	}
	if errors.Is(err, embeddings.ErrDimensionMismatch) {
		return false
	}
	if errors.Is(err, provider.ErrUnknownProvider) {
		return false
	}
	return true
}

// Stats reports live collection metadata.
func (e *Engine) Stats(ctx context.Context) (*vectorstore.CollectionInfo, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	info, err := e.store.CollectionInfo(ctx, e.opts.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCollectionUnavailable, err)
	}
	return info, nil
}

// Health verifies the vector store is reachable.
func (e *Engine) Health(ctx context.Context) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.store.HealthCheck(ctx)
}

// Providers lists the registered completion backends.
func (e *Engine) Providers() []provider.Descriptor {
	return e.registry.List()
}

// CurrentProvider returns the ID of the current completion backend.
func (e *Engine) CurrentProvider() string {
	return e.registry.CurrentID()
}

// SelectProvider switches the current completion backend.
func (e *Engine) SelectProvider(id string) error {
	return e.registry.Select(id)
}
