package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

type stubGenerator struct {
	reply  string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"casual", Casual},
		{"  Formal\n", Formal},
		{"TECHNICAL.", Technical},
		{"\"creative\"", Creative},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseCategory(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestParseCategoryRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "sarcastic", "casual-ish", "technical and creative"} {
		_, err := ParseCategory(in)
		if !errors.Is(err, ErrUnknownCategory) || !errors.Is(err, domain.ErrInvalidArgument) || !IsUnknown(err) {
			t.Errorf("ParseCategory(%q): expected ErrUnknownCategory, got %v", in, err)
		}
	}
}

func TestCategoryText(t *testing.T) {
	for _, c := range Categories {
		if c.String() == "unknown" || c.Description() == "" || c.Instruction() == "" {
			t.Errorf("category %d missing text", c)
		}
	}
	if Category(0).String() != "unknown" || Category(0).Instruction() != "" {
		t.Fatal("zero category should be unknown")
	}
	if Casual.Heading() != "" || !strings.Contains(Technical.Heading(), "Technical Analysis") {
		t.Fatal("unexpected headings")
	}
}

func TestClassify(t *testing.T) {
	gen := &stubGenerator{reply: "technical"}
	got, err := NewClassifier(gen).Classify(context.Background(), "How do goroutines work?")
	if err != nil || got != Technical {
		t.Fatalf("got %v, %v", got, err)
	}
	if !strings.Contains(gen.prompt, "- creative: Creative writing") || !strings.HasSuffix(gen.prompt, "Classify: How do goroutines work?") {
		t.Fatalf("unexpected prompt:\n%s", gen.prompt)
	}
}

func TestClassifyErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClassifier(&stubGenerator{reply: "poetic"}).Classify(ctx, "hi"); !IsUnknown(err) {
		t.Fatalf("expected unknown category, got %v", err)
	}
	if _, err := NewClassifier(&stubGenerator{err: errors.New("down")}).Classify(ctx, "hi"); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if _, err := NewClassifier(&stubGenerator{}).Classify(ctx, " "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
