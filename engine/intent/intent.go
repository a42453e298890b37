// Package intent classifies a chat message into a response style.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

// Category is the enumerated style of a message.
type Category int

const (
	Casual Category = iota + 1
	Formal
	Technical
	Creative
)

// Categories lists every valid category in prompt order.
var Categories = []Category{Casual, Formal, Technical, Creative}

// ErrUnknownCategory is returned for labels outside Categories.
var ErrUnknownCategory = fmt.Errorf("%w: unknown category", domain.ErrInvalidArgument)

func (c Category) String() string {
	switch c {
	case Casual:
		return "casual"
	case Formal:
		return "formal"
	case Technical:
		return "technical"
	case Creative:
		return "creative"
	default:
		return "unknown"
	}
}

// Description is how the category is explained to the classifier.
func (c Category) Description() string {
	switch c {
	case Casual:
		return "Informal, friendly, everyday conversation"
	case Formal:
		return "Professional, business-like, serious topics"
	case Technical:
		return "Technical questions, programming, complex topics"
	case Creative:
		return "Creative writing, brainstorming, artistic topics"
	default:
		return ""
	}
}

// Instruction is the answer-style instruction added to the prompt.
func (c Category) Instruction() string {
	switch c {
	case Casual:
		return "Respond in a warm, conversational tone and keep it light and engaging."
	case Formal:
		return "Provide a clear, well-structured response with proper formatting. Be thorough and authoritative."
	case Technical:
		return "Provide detailed, accurate technical information. Use code examples when appropriate and explain complex concepts clearly."
	case Creative:
		return "Think outside the box and provide unique perspectives. Use creative language and metaphors."
	default:
		return ""
	}
}

// Heading prefixes replies of this category.
func (c Category) Heading() string {
	switch c {
	case Formal:
		return "📋 **Professional Response:**\n\n"
	case Technical:
		return "⚙️ **Technical Analysis:**\n\n"
	case Creative:
		return "🎨 **Creative Response:**\n\n"
	default:
		return ""
	}
}

// ParseCategory maps a label to its Category. Case and surrounding
// whitespace or punctuation are ignored; anything else is rejected.
func ParseCategory(label string) (Category, error) {
	norm := strings.ToLower(strings.Trim(strings.TrimSpace(label), ".\"'`*"))
	for _, c := range Categories {
		if norm == c.String() {
			return c, nil
		}
	}
	return 0, fmt.Errorf("intent: %q: %w", label, ErrUnknownCategory)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Classifier asks a Generator for a category label.
type Classifier struct {
	gen Generator
}

// NewClassifier creates a Classifier backed by gen.
func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Prompt renders the classification prompt for text.
func Prompt(text string) string {
	var b strings.Builder
	b.WriteString("Classify the user's input into one of these categories:\n")
	for _, c := range Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c, c.Description())
	}
	b.WriteString("\nRespond with just the category name.\n\nClassify: ")
	b.WriteString(text)
	return b.String()
}

// Classify returns the category of text. A label the generator invents is
// an ErrUnknownCategory error, never a silent default.
func (c *Classifier) Classify(ctx context.Context, text string) (Category, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("intent: %w", domain.InvalidArg("text", text))
	}
	label, err := c.gen.Generate(ctx, Prompt(text))
	if err != nil {
		return 0, fmt.Errorf("intent: classify: %w", domain.GenerationFailure(err))
	}
	return ParseCategory(label)
}

// IsUnknown reports whether err came from an unrecognized label.
func IsUnknown(err error) bool { return errors.Is(err, ErrUnknownCategory) }
