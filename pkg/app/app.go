// Package app assembles the retrieval pipeline from configuration. The API
// server, the directory ingester and the CLI share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kk32340/SampleMLCode/engine/chat"
	"github.com/kk32340/SampleMLCode/engine/chunker"
	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/engine/ingest"
	"github.com/kk32340/SampleMLCode/engine/intent"
	"github.com/kk32340/SampleMLCode/engine/rag"
	"github.com/kk32340/SampleMLCode/engine/semantic"
	"github.com/kk32340/SampleMLCode/engine/session"
	"github.com/kk32340/SampleMLCode/pkg/config"
	"github.com/kk32340/SampleMLCode/pkg/gemini"
	"github.com/kk32340/SampleMLCode/pkg/ollama"
)

// Index is the full vector index contract: both backends satisfy it.
type Index interface {
	Insert(ctx context.Context, records []domain.Record) ([]string, error)
	Replace(ctx context.Context, docID string, records []domain.Record) (int, error)
	DeleteByDocument(ctx context.Context, docID string) (int, error)
	Query(ctx context.Context, vec []float32, k int) ([]domain.ScoredResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Embedder embeds texts, one vector per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Providers are the external model adapters.
type Providers struct {
	Embedder  Embedder
	Generator Generator
	// Model names the generation model for status output.
	Model string
}

// App holds the assembled components.
type App struct {
	Config    *config.Config
	Providers Providers
	Index     Index
	Chunker   *chunker.Chunker
	RAG       *rag.Service
	Ingester  *ingest.Ingester
	Sessions  *session.Store
	Bot       *chat.Bot
	Logger    *slog.Logger

	closers []func() error
}

// NewProviders builds the embedding and generation adapters named by cfg.
// One Gemini client serves both roles when both select Gemini.
func NewProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Providers, error) {
	var p Providers
	var gc *gemini.Client
	if cfg.UsesGemini() {
		gcfg := gemini.DefaultConfig()
		gcfg.APIKey = cfg.Gemini.APIKey
		gcfg.Model = cfg.Gemini.Model
		gcfg.EmbedModel = cfg.Gemini.EmbedModel
		gcfg.Logger = logger
		var err error
		if gc, err = gemini.New(ctx, gcfg); err != nil {
			return p, fmt.Errorf("app: %w", err)
		}
	}

	switch cfg.EmbedProvider {
	case config.ProviderGemini:
		p.Embedder = gc
	case config.ProviderOllama:
		p.Embedder = ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel)
	}
	switch cfg.ChatProvider {
	case config.ProviderGemini:
		p.Generator, p.Model = gc, gc.Model()
	case config.ProviderOllama:
		oc := ollama.NewChatClient(cfg.Ollama.URL, cfg.Ollama.ChatModel)
		p.Generator, p.Model = oc, oc.Model()
	}
	return p, nil
}

// OpenIndex opens the configured index backend. The returned func releases it.
func OpenIndex(cfg *config.Config) (Index, func() error, error) {
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		vs, err := semantic.New(cfg.Index.QdrantURL, cfg.Index.Collection)
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		return vs, vs.Close, nil
	default:
		return semantic.NewMemoryIndex(), func() error { return nil }, nil
	}
}

// New opens the configured providers and index and assembles the pipeline.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	providers, err := NewProviders(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	idx, closeIdx, err := OpenIndex(cfg)
	if err != nil {
		return nil, err
	}
	a, err := Assemble(cfg, providers, idx, logger)
	if err != nil {
		_ = closeIdx()
		return nil, err
	}
	a.closers = append(a.closers, closeIdx)
	return a, nil
}

// Assemble wires the pipeline over already-built providers and index.
func Assemble(cfg *config.Config, p Providers, idx Index, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Embedder == nil || p.Generator == nil || idx == nil {
		return nil, fmt.Errorf("app: %w", domain.InvalidConfig("providers", "missing"))
	}
	ch, err := chunker.New(cfg.ChunkerOptions())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	sessions, err := session.New(cfg.Retrieval.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	opts := rag.DefaultOptions()
	opts.TopK = cfg.Retrieval.TopK
	svc := rag.New(idx, p.Embedder, p.Generator, opts, logger)

	ing := ingest.NewIngester(ingest.Deps{
		Embedder: p.Embedder,
		Index:    idx,
		Chunker:  ch,
		Logger:   logger,
	})

	bot := chat.New(svc, sessions, chat.Options{
		Classifier: intent.NewClassifier(p.Generator),
		Index:      idx,
		Model:      p.Model,
		TopK:       cfg.Retrieval.TopK,
		Logger:     logger,
	})

	return &App{
		Config:    cfg,
		Providers: p,
		Index:     idx,
		Chunker:   ch,
		RAG:       svc,
		Ingester:  ing,
		Sessions:  sessions,
		Bot:       bot,
		Logger:    logger,
	}, nil
}

// IngestDeps returns pipeline dependencies matching the App, for consumers
// that run their own pipeline such as the NATS ingest consumer.
func (a *App) IngestDeps() ingest.Deps {
	return ingest.Deps{
		Embedder: a.Providers.Embedder,
		Index:    a.Index,
		Chunker:  a.Chunker,
		Logger:   a.Logger,
	}
}

// Close releases the index connection.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
