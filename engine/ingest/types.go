package ingest

import (
	"context"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

// Embedder maps texts to vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the write side of a vector index. Replace swaps a document's
// chunks atomically: on error the previous version stays queryable.
type Index interface {
	Replace(ctx context.Context, docID string, records []domain.Record) (int, error)
}

// ChunkedDoc is a validated document split into embeddable chunks.
type ChunkedDoc struct {
	Doc    domain.Document
	Chunks []domain.Chunk
}

// EmbeddedDoc is a chunked document with one embedding per chunk.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}

// Stored summarises a document written to the index.
type Stored struct {
	DocID    string
	Chunks   int
	Replaced int
}

// Failure records why one document of a batch was not ingested.
type Failure struct {
	DocID string `json:"doc_id"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// Report is the outcome of a batch ingestion.
type Report struct {
	Ingested int       `json:"ingested"`
	Chunks   int       `json:"chunks"`
	Replaced int       `json:"replaced"`
	Failures []Failure `json:"failures"`
}
