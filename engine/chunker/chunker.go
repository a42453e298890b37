// Package chunker splits document text into overlapping character windows,
// shrinking each window to the last sentence or line break past its midpoint.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

const (
	// DefaultChunkSize is the window length in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive windows.
	DefaultOverlap = 200
	// ShortChunkLength is the MinChunkLength used for small documents;
	// chunks of 20 characters or fewer are dropped.
	ShortChunkLength = 21
)

// Options configures a Chunker.
type Options struct {
	ChunkSize int
	Overlap   int
	// MinChunkLength discards chunks whose trimmed text is shorter than this.
	// Zero keeps everything.
	MinChunkLength int
}

// DefaultOptions returns the generic pipeline settings.
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

// ShortDocumentOptions returns the settings for small documents: smaller
// windows and no fragments of 20 characters or fewer.
func ShortDocumentOptions() Options {
	return Options{ChunkSize: 500, Overlap: 50, MinChunkLength: ShortChunkLength}
}

// Validate reports an InvalidConfiguration error for unusable options.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return domain.InvalidConfig("chunk_size", o.ChunkSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		return domain.InvalidConfig("overlap", o.Overlap)
	}
	if o.MinChunkLength < 0 {
		return domain.InvalidConfig("min_chunk_length", o.MinChunkLength)
	}
	return nil
}

// Span is one emitted window. Start and End are rune offsets into the source
// text, End exclusive; Text is the trimmed substring.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker is safe for concurrent use.
type Chunker struct {
	opts Options
}

// New validates opts and returns a Chunker.
func New(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{opts: opts}, nil
}

// Options returns the chunker's configuration.
func (c *Chunker) Options() Options { return c.opts }

// Split is a convenience for a one-off split with no minimum length.
func Split(text string, chunkSize, overlap int) ([]Span, error) {
	c, err := New(Options{ChunkSize: chunkSize, Overlap: overlap})
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// Split cuts text into windows.
func (c *Chunker) Split(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	size, overlap := c.opts.ChunkSize, c.opts.Overlap
	var spans []Span
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else if b := lastBreak(runes, start, end); b > start+size/2 {
			end = b + 1
		}

		if s, ok := c.span(runes, start, end); ok {
			spans = append(spans, s)
		}
		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// span trims runes[start:end] and applies the minimum length filter.
func (c *Chunker) span(runes []rune, start, end int) (Span, bool) {
	text := strings.TrimSpace(string(runes[start:end]))
	if text == "" {
		return Span{}, false
	}
	if c.opts.MinChunkLength > 0 && utf8.RuneCountInString(text) < c.opts.MinChunkLength {
		return Span{}, false
	}
	return Span{Start: start, End: end, Text: text}, true
}

// lastBreak returns the offset of the last '.' or '\n' in runes[start:end], or -1.
func lastBreak(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}

// Chunk splits doc into domain chunks. Each chunk carries a copy of the
// document metadata plus its doc id, index and length.
func (c *Chunker) Chunk(doc domain.Document) []domain.Chunk {
	spans := c.Split(doc.Content)
	chunks := make([]domain.Chunk, len(spans))
	for i, s := range spans {
		length := utf8.RuneCountInString(s.Text)
		meta := doc.Metadata.Clone()
		meta[domain.MetaDocID] = doc.ID
		meta[domain.MetaChunkIndex] = i
		meta[domain.MetaChunkSize] = length
		chunks[i] = domain.Chunk{
			DocID:    doc.ID,
			Index:    i,
			Text:     s.Text,
			Start:    s.Start,
			End:      s.End,
			Length:   length,
			Metadata: meta,
		}
	}
	return chunks
}
