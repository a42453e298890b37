// Package gemini provides embedding and generation adapters backed by the
// Google Gemini API. Retries, the circuit breaker and request pacing live
// here, so callers see a single typed failure per call.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/pkg/fn"
	"github.com/kk32340/SampleMLCode/pkg/resilience"
)

const (
	DefaultModel      = "gemini-1.5-flash-latest"
	DefaultEmbedModel = "text-embedding-004"
	// MaxEmbedBatch is the most texts sent in one embedding request.
	MaxEmbedBatch = 100
)

// Config holds Gemini adapter configuration.
type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
	// Temperature is left to the API default when nil.
	Temperature     *float32
	MaxOutputTokens int32
	Retry           fn.RetryOpts
	Breaker         resilience.BreakerOpts
	RateLimit       resilience.LimiterOpts
	Logger          *slog.Logger
}

// DefaultConfig returns defaults for everything but the API key.
func DefaultConfig() Config {
	return Config{
		Model:      DefaultModel,
		EmbedModel: DefaultEmbedModel,
		Retry:      fn.DefaultRetry,
		Breaker:    resilience.DefaultBreakerOpts,
		RateLimit:  resilience.LimiterOpts{Rate: 10, Burst: 5},
	}
}

// modelsAPI is the subset of *genai.Models the adapter uses.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client implements both the embedding and the generation adapter.
type Client struct {
	models  modelsAPI
	cfg     Config
	breaker *resilience.Breaker
	limiter *resilience.Limiter
	log     *slog.Logger
}

// New creates a Client for the Gemini API. A missing API key is an
// ErrInvalidConfiguration.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", domain.InvalidConfig("api_key", ""))
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return NewWithModels(client.Models, cfg), nil
}

// NewWithModels creates a Client over an existing models API.
func NewWithModels(models modelsAPI, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = def.EmbedModel
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("adapter", "gemini")

	bopts := cfg.Breaker
	bopts.OnStateChange = func(from, to resilience.State) {
		log.Warn("gemini: circuit breaker", "from", from.String(), "to", to.String())
	}
	return &Client{
		models:  models,
		cfg:     cfg,
		breaker: resilience.NewBreaker(bopts),
		limiter: resilience.NewLimiter(cfg.RateLimit),
		log:     log,
	}
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate returns the model's answer to prompt. Failures wrap
// domain.ErrGenerationUnavailable.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	gc := &genai.GenerateContentConfig{Temperature: c.cfg.Temperature}
	if c.cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = c.cfg.MaxOutputTokens
	}

	res := call(ctx, c, func(ctx context.Context) (string, error) {
		resp, err := c.models.GenerateContent(ctx, c.cfg.Model, genai.Text(prompt), gc)
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return "", fn.Permanent(errors.New("empty response"))
		}
		return text, nil
	})
	text, err := res.Unwrap()
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", domain.GenerationFailure(err))
	}
	return text, nil
}

// Embed returns one vector per text, in order. Failures wrap
// domain.ErrEmbeddingUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range fn.Batch(texts, MaxEmbedBatch) {
		contents := make([]*genai.Content, 0, len(batch))
		for _, t := range batch {
			contents = append(contents, genai.Text(t)...)
		}

		res := call(ctx, c, func(ctx context.Context) ([][]float32, error) {
			resp, err := c.models.EmbedContent(ctx, c.cfg.EmbedModel, contents, nil)
			if err != nil {
				return nil, err
			}
			if len(resp.Embeddings) != len(batch) {
				return nil, fn.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(batch)))
			}
			vecs := make([][]float32, len(resp.Embeddings))
			for i, e := range resp.Embeddings {
				if e == nil || len(e.Values) == 0 {
					return nil, fn.Permanent(fmt.Errorf("empty embedding at %d", i))
				}
				vecs[i] = e.Values
			}
			return vecs, nil
		})
		vecs, err := res.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("gemini: embed: %w", domain.EmbeddingFailure(err))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// call runs f under the adapter's policies: pacing, circuit breaker, retry.
func call[T any](ctx context.Context, c *Client, f func(context.Context) (T, error)) fn.Result[T] {
	start := time.Now()
	res := fn.Retry(ctx, c.cfg.Retry, func(ctx context.Context) fn.Result[T] {
		if err := c.limiter.Wait(ctx); err != nil {
			return fn.Err[T](fn.Permanent(err))
		}
		var out T
		err := c.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			out, err = f(ctx)
			return err
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = fn.Permanent(err)
		}
		return fn.FromPair(out, err)
	})
	if res.IsErr() {
		c.log.Warn("gemini: call failed", "err", res.Error(), "duration", time.Since(start))
	}
	return res
}
