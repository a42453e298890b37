// Package domain defines the core types and error kinds shared by the
// retrieval pipeline: documents, chunks, index records and scored results.
// It acts as the validation gate at pipeline entry points.
package domain

// Metadata maps string keys to string or numeric values. It is supplied by the
// caller with a Document and copied onto every chunk derived from it.
type Metadata map[string]any

// Clone returns a shallow copy of m. A nil map clones to an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Metadata keys added to every chunk.
const (
	MetaDocID      = "doc_id"
	MetaChunkIndex = "chunk_index"
	MetaChunkSize  = "chunk_size"
)

// Document is a unit of source text handed to the pipeline. Immutable once ingested.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Chunk is a bounded substring of exactly one Document.
// Start and End are rune offsets into the document content.
type Chunk struct {
	DocID    string   `json:"doc_id"`
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Length   int      `json:"length"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Record pairs a chunk with its embedding for insertion into an index.
type Record struct {
	Chunk     Chunk
	Embedding []float32
}

// ScoredResult is a single query hit. Score is cosine similarity in [-1, 1].
type ScoredResult struct {
	ID       string   `json:"id"`
	DocID    string   `json:"doc_id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
	Score    float64  `json:"score"`
}
