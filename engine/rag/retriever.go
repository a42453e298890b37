package rag

import (
	"context"
	"fmt"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

// Embedder maps texts to vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the query side of a vector index.
type Searcher interface {
	Query(ctx context.Context, vec []float32, k int) ([]domain.ScoredResult, error)
}

// Retriever turns a question into a ranked list of grounding chunks.
type Retriever struct {
	index Searcher
	embed Embedder
}

// NewRetriever creates a Retriever over index using embed for the query vector.
func NewRetriever(index Searcher, embed Embedder) *Retriever {
	return &Retriever{index: index, embed: embed}
}

// Retrieve embeds query and returns the k nearest chunks, most similar first.
// Embedding failures are surfaced as ErrEmbeddingUnavailable and are not retried here.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredResult, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	if err := domain.ValidateK(k); err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}

	vecs, err := r.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", domain.EmbeddingFailure(err))
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embed query: %w", domain.EmbeddingFailure(
			fmt.Errorf("adapter returned %d vectors for 1 input", len(vecs))))
	}

	results, err := r.index.Query(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if results == nil {
		results = []domain.ScoredResult{}
	}
	return results, nil
}
