// Package ingest provides the ingestion pipeline that takes documents
// through validation, chunking, embedding and storage stages.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kk32340/SampleMLCode/engine/chunker"
	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/pkg/fn"
)

// EmbedBatchSize is the max chunks per embedding request.
const EmbedBatchSize = 100

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder Embedder
	Index    Index
	// Chunker defaults to chunker.DefaultOptions.
	Chunker *chunker.Chunker
	// BatchSize defaults to EmbedBatchSize.
	BatchSize int
	// Workers bounds concurrent documents in Ingest. Defaults to 4.
	Workers int
	Logger  *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Chunker == nil {
		d.Chunker, _ = chunker.New(chunker.DefaultOptions())
	}
	if d.BatchSize <= 0 {
		d.BatchSize = EmbedBatchSize
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// --- Pipeline Stages ---

// Validate checks a Document via domain validation.
var Validate fn.Stage[domain.Document, domain.Document] = func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
	if err := domain.ValidateDocument(doc); err != nil {
		return fn.Err[domain.Document](fmt.Errorf("ingest: validate: %w", err))
	}
	return fn.Ok(doc)
}

// NewChunk creates a stage that splits a document with c.
func NewChunk(c *chunker.Chunker) fn.Stage[domain.Document, ChunkedDoc] {
	return func(_ context.Context, doc domain.Document) fn.Result[ChunkedDoc] {
		return fn.Ok(ChunkedDoc{Doc: doc, Chunks: c.Chunk(doc)})
	}
}

// NewEmbed creates an Embed stage that embeds chunk texts in batches of size.
func NewEmbed(e Embedder, size int) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		texts := fn.Map(doc.Chunks, func(c domain.Chunk) string { return c.Text })
		embeddings := make([][]float32, 0, len(texts))

		for _, batch := range fn.Batch(texts, size) {
			vecs, err := e.Embed(ctx, batch)
			if err != nil {
				return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed batch: %w", domain.EmbeddingFailure(err)))
			}
			if len(vecs) != len(batch) {
				return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed batch: %w", domain.EmbeddingFailure(
					fmt.Errorf("adapter returned %d vectors for %d texts", len(vecs), len(batch)))))
			}
			embeddings = append(embeddings, vecs...)
		}

		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore creates a Store stage that replaces the document's chunks in idx.
func NewStore(idx Index) fn.Stage[EmbeddedDoc, Stored] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[Stored] {
		records := make([]domain.Record, len(doc.Chunks))
		for i, c := range doc.Chunks {
			records[i] = domain.Record{Chunk: c, Embedding: doc.Embeddings[i]}
		}
		replaced, err := idx.Replace(ctx, doc.Doc.ID, records)
		if err != nil {
			return fn.Err[Stored](fmt.Errorf("ingest: store: %w", err))
		}
		return fn.Ok(Stored{DocID: doc.Doc.ID, Chunks: len(records), Replaced: replaced})
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[domain.Document, Stored] {
	deps = deps.withDefaults()
	log := deps.Logger

	// Compose: Validate → Chunk → Embed → Store
	// with logging taps between stages.
	validated := fn.Then(LoggedTap[domain.Document]("validate", log), Validate)
	chunked := fn.Then(validated, fn.Then(LoggedTap[domain.Document]("chunk", log), NewChunk(deps.Chunker)))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log),
		fn.TracedStage("ingest.embed", NewEmbed(deps.Embedder, deps.BatchSize))))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedDoc]("store", log),
		fn.TracedStage("ingest.store", NewStore(deps.Index))))

	return fn.TracedStage("ingest.document", stored)
}
