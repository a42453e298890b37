package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/pkg/fn"
)

// ChatClient generates text through /api/generate without streaming.
type ChatClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewChatClient creates an Ollama generation client.
func NewChatClient(baseURL, model string) *ChatClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &ChatClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the model's completion of prompt. Failures wrap
// domain.ErrGenerationUnavailable.
func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	res := fn.Retry(ctx, retry, func(ctx context.Context) fn.Result[string] {
		var out generateResp
		if err := postJSON(ctx, c.client, c.baseURL+"/api/generate", generateReq{Model: c.model, Prompt: prompt}, &out); err != nil {
			return fn.Err[string](err)
		}
		return fn.Ok(out.Response)
	})
	text, err := res.Unwrap()
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", domain.GenerationFailure(err))
	}
	return text, nil
}

// Model returns the configured model name.
func (c *ChatClient) Model() string { return c.model }
