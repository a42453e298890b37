package rag

import (
	"context"
	"strings"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NoContextMessage stands in for the context block when nothing was retrieved.
const NoContextMessage = "No relevant information found."

// ErrorPrefix starts every answer produced from a failed generation call.
const ErrorPrefix = "Error generating response: "

const promptHeader = `You are a helpful AI assistant. Use the following context to answer the user's question.
If the context doesn't contain enough information to answer the question, say so clearly.`

// PromptInput is everything a prompt is built from. History and Instruction
// are optional and omitted from the prompt when empty.
type PromptInput struct {
	Query       string
	Results     []domain.ScoredResult
	History     string
	Instruction string
}

// BuildContext joins result texts in ranking order, separated by a blank line.
func BuildContext(results []domain.ScoredResult) string {
	if len(results) == 0 {
		return NoContextMessage
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt renders the grounding prompt for query over results.
func BuildPrompt(query string, results []domain.ScoredResult) string {
	return RenderPrompt(PromptInput{Query: query, Results: results})
}

// RenderPrompt renders in into the prompt template.
func RenderPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	if in.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(in.Instruction)
	}
	b.WriteString("\n\nContext:\n")
	b.WriteString(BuildContext(in.Results))
	if in.History != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(in.History)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(in.Query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Composer builds a grounded prompt and delegates to a Generator.
type Composer struct {
	gen Generator
}

// NewComposer creates a Composer backed by gen.
func NewComposer(gen Generator) *Composer {
	return &Composer{gen: gen}
}

// Compose answers query from results. A generation failure becomes a readable
// error string rather than an error value, so callers always get a reply.
func (c *Composer) Compose(ctx context.Context, query string, results []domain.ScoredResult) string {
	answer, _ := c.ComposeWith(ctx, PromptInput{Query: query, Results: results})
	return answer
}

// ComposeWith is Compose with optional history and style. The returned error
// is the underlying generation failure, already rendered into the answer.
func (c *Composer) ComposeWith(ctx context.Context, in PromptInput) (string, error) {
	answer, err := c.gen.Generate(ctx, RenderPrompt(in))
	if err != nil {
		err = domain.GenerationFailure(err)
		return ErrorPrefix + err.Error(), err
	}
	return answer, nil
}

// IsErrorAnswer reports whether answer was produced from a failed generation.
func IsErrorAnswer(answer string) bool {
	return strings.HasPrefix(answer, ErrorPrefix)
}
