package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Report summarizes one ingestion run.
type Report struct {
	// DocumentsIngested is the number of documents fully indexed.
	DocumentsIngested int `json:"documents_ingested"`
	// DocumentsFailed is the number of documents that could not be indexed.
	DocumentsFailed int `json:"documents_failed"`
	// ChunksIndexed is the total number of chunks upserted.
	ChunksIndexed int `json:"chunks_indexed"`
	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`
	// Failures lists each failed document with its reason.
	Failures []Failure `json:"failures,omitempty"`
}

// Options tune the ingestion pipeline.
type Options struct {
	// Collection is the vector collection written to.
	Collection string
	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int
	// StoreTimeout bounds a single vector store call.
	StoreTimeout time.Duration
}

// Pipeline chunks documents, embeds the chunks in batches and upserts the
// results. A document either lands completely or is recorded as a failure;
// one bad document never aborts the run.
type Pipeline struct {
	embedder embeddings.Provider
	store    vectorstore.Store
	chunker  *Chunker
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(embedder embeddings.Provider, store vectorstore.Store, chunker *Chunker, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if err := vectorstore.ValidateCollectionName(opts.Collection); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		chunker:  chunker,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("ragd.ingest"),
	}, nil
}

// Ingest indexes the given documents and returns a report. Re-ingesting a
// document appends new chunks under fresh IDs; existing entries are never
// replaced. Pre-scan failures can be passed in to appear in the report.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document, preFailures []Failure) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", p.opts.Collection),
		attribute.Int("documents", len(docs)),
	)

	start := time.Now()
	report := &Report{Failures: append([]Failure(nil), preFailures...)}
	report.DocumentsFailed = len(preFailures)

	if len(docs) == 0 && len(preFailures) == 0 {
		return nil, ErrNoDocuments
	}

	if err := p.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring collection %s: %w", p.opts.Collection, err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := p.ingestOne(ctx, doc)
		if err != nil {
			report.DocumentsFailed++
			report.Failures = append(report.Failures, Failure{
				Source: doc.Source,
				Reason: err.Error(),
			})
			p.logger.Warn("document ingestion failed",
				zap.String("source", doc.Source),
				zap.Error(err))
			continue
		}
		report.DocumentsIngested++
		report.ChunksIndexed += n
	}

	report.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		zap.String("collection", p.opts.Collection),
		zap.Int("ingested", report.DocumentsIngested),
		zap.Int("failed", report.DocumentsFailed),
		zap.Int("chunks", report.ChunksIndexed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// ingestOne chunks, embeds and upserts a single document. Returns the number
// of chunks indexed.
func (p *Pipeline) ingestOne(ctx context.Context, doc Document) (int, error) {
	chunks := p.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	// Embed every batch before touching the store, so a failure partway
	// through embedding leaves no partial document behind.
	entries := make([]vectorstore.Entry, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += p.opts.BatchSize {
		batchEnd := batchStart + p.opts.BatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		vectors, err := p.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("embedding chunks %d-%d: %w", batchStart, batchEnd-1, err)
		}

		for i, chunk := range batch {
			entries = append(entries, vectorstore.Entry{
				ID:     uuid.NewString(),
				Vector: vectors[i],
				Payload: vectorstore.Payload{
					Text:       chunk,
					Source:     doc.Source,
					ChunkIndex: batchStart + i,
					Extra:      doc.Metadata,
				},
			})
		}
	}

	if err := p.upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("upserting %d chunks: %w", len(entries), err)
	}
	return len(entries), nil
}

// ensureCollection creates the collection if missing, bounded by the store
// timeout.
func (p *Pipeline) ensureCollection(ctx context.Context) error {
	ctx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.store.EnsureCollection(ctx, p.opts.Collection, p.embedder.Dimension())
}

// upsert writes entries to the store, bounded by the store timeout.
func (p *Pipeline) upsert(ctx context.Context, entries []vectorstore.Entry) error {
	ctx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.store.Upsert(ctx, p.opts.Collection, entries)
}

// storeContext applies the configured store timeout, when set.
func (p *Pipeline) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.opts.StoreTimeout)
}
