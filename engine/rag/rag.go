// Package rag orchestrates Retrieval-Augmented Generation: it embeds a
// question, searches the vector index for grounding chunks, builds a prompt
// and asks the generation adapter for the final answer.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

const tracerName = "github.com/kk32340/SampleMLCode/engine/rag"

// Options configures the RAG pipeline behaviour.
type Options struct {
	// TopK is used when a request does not name k.
	TopK int
	// SearchTimeout bounds the retrieval step. Zero means no timeout.
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          3,
		SearchTimeout: 10 * time.Second,
	}
}

// Service is the RAG orchestration service.
type Service struct {
	retriever *Retriever
	composer  *Composer
	opts      Options
	logger    *slog.Logger
}

// New creates a Service answering from index with the given adapters.
func New(index Searcher, embed Embedder, gen Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	return &Service{
		retriever: NewRetriever(index, embed),
		composer:  NewComposer(gen),
		opts:      opts,
		logger:    logger,
	}
}

// Answer is the structured response from the RAG pipeline.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	// Degraded is set when generation failed and Answer holds the error text.
	Degraded bool `json:"degraded,omitempty"`
}

// Source is a chunk backing the answer.
type Source struct {
	Content  string          `json:"content"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
	Score    float64         `json:"score"`
}

// AskRequest carries a question with optional conversation context.
type AskRequest struct {
	Query string
	// K defaults to Options.TopK when zero.
	K int
	// History is the rendered conversation, oldest first.
	History string
	// Instruction adjusts the answer style.
	Instruction string
}

// Ask retrieves the k best chunks for query and composes an answer from them.
// Unlike AskWith, k is never defaulted.
func (s *Service) Ask(ctx context.Context, query string, k int) (*Answer, error) {
	if err := domain.ValidateK(k); err != nil {
		return nil, fmt.Errorf("rag: ask: %w", err)
	}
	return s.AskWith(ctx, AskRequest{Query: query, K: k})
}

// AskWith runs the full pipeline for req. Retrieval errors are returned;
// generation errors are folded into the answer text.
func (s *Service) AskWith(ctx context.Context, req AskRequest) (*Answer, error) {
	k := req.K
	if k == 0 {
		k = s.opts.TopK
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.Ask")
	defer span.End()
	span.SetAttributes(attribute.Int("rag.k", k), attribute.Int("rag.query_len", len(req.Query)))

	start := time.Now()
	results, err := s.retrieve(ctx, req.Query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("rag retrieve failed", "err", err)
		return nil, err
	}
	s.logger.Debug("rag retrieve done", "results", len(results), "duration", time.Since(start))

	text, genErr := s.composer.ComposeWith(ctx, PromptInput{
		Query:       req.Query,
		Results:     results,
		History:     req.History,
		Instruction: req.Instruction,
	})
	if genErr != nil {
		span.RecordError(genErr)
		s.logger.Warn("rag generation failed", "err", genErr)
	}
	span.SetAttributes(attribute.Int("rag.results", len(results)))

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{Content: r.Content, Metadata: r.Metadata, Score: r.Score}
	}
	s.logger.Info("rag answer",
		"results", len(results),
		"degraded", genErr != nil,
		"duration", time.Since(start),
	)
	return &Answer{Answer: text, Sources: sources, Degraded: genErr != nil}, nil
}

// Retrieve exposes the retrieval step on its own.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredResult, error) {
	return s.retrieve(ctx, query, k)
}

func (s *Service) retrieve(ctx context.Context, query string, k int) ([]domain.ScoredResult, error) {
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}
	return s.retriever.Retrieve(ctx, query, k)
}
