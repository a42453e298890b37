// Package semantic owns vector storage and nearest-neighbour search.
// MemoryIndex is the process-local brute-force index; VectorStore keeps the
// same contract on top of Qdrant.
package semantic

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/kk32340/SampleMLCode/engine/domain"
)

type entry struct {
	id    string
	chunk domain.Chunk
	vec   []float32
	norm  float64
}

// MemoryIndex stores records in insertion order and scores queries by a full
// cosine scan. Queries run concurrently; inserts, deletes and clears take the
// write lock, so a query never observes a partially applied batch.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []entry
	dim     int
	newID   func() string
}

// NewMemoryIndex returns an empty index. The first insert fixes its dimension.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{newID: uuid.NewString}
}

// Insert adds records atomically and returns their assigned ids in order.
// A record whose embedding length differs from the index dimension fails the
// whole batch with a DimensionError and leaves the index unchanged.
func (m *MemoryIndex) Insert(_ context.Context, records []domain.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := m.checkLocked(records)
	if err != nil {
		return nil, err
	}
	return m.appendLocked(records, dim), nil
}

// Replace swaps every entry of docID for records under one write lock and
// returns how many entries were removed. A dimension mismatch leaves the
// previous version in place.
func (m *MemoryIndex) Replace(_ context.Context, docID string, records []domain.Record) (int, error) {
	if err := checkOwner(docID, records); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dim
	if len(records) > 0 {
		var err error
		if dim, err = m.checkLocked(records); err != nil {
			return 0, err
		}
	}
	removed := m.removeLocked(docID)
	if len(records) > 0 {
		m.appendLocked(records, dim)
	}
	return removed, nil
}

// DeleteByDocument removes every entry owned by docID and returns how many went.
func (m *MemoryIndex) DeleteByDocument(_ context.Context, docID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(docID), nil
}

func (m *MemoryIndex) checkLocked(records []domain.Record) (int, error) {
	dim := m.dim
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return 0, domain.InvalidArg("embedding", i)
		}
		if len(r.Embedding) != dim {
			return 0, &domain.DimensionError{Expected: dim, Got: len(r.Embedding)}
		}
	}
	return dim, nil
}

func (m *MemoryIndex) appendLocked(records []domain.Record, dim int) []string {
	ids := make([]string, len(records))
	added := make([]entry, len(records))
	for i, r := range records {
		vec := slices.Clone(r.Embedding)
		chunk := r.Chunk
		chunk.Metadata = r.Chunk.Metadata.Clone()
		ids[i] = m.newID()
		added[i] = entry{id: ids[i], chunk: chunk, vec: vec, norm: norm(vec)}
	}
	m.entries = append(m.entries, added...)
	m.dim = dim
	return ids
}

func (m *MemoryIndex) removeLocked(docID string) int {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.chunk.DocID != docID {
			kept = append(kept, e)
		}
	}
	removed := len(m.entries) - len(kept)
	clear(m.entries[len(kept):])
	m.entries = kept
	return removed
}

// checkOwner rejects a replacement batch containing another document's chunks.
func checkOwner(docID string, records []domain.Record) error {
	if docID == "" {
		return domain.InvalidArg("doc_id", docID)
	}
	for _, r := range records {
		if r.Chunk.DocID != docID {
			return domain.InvalidArg("doc_id", r.Chunk.DocID)
		}
	}
	return nil
}

// Query returns up to k results in descending similarity. Equal scores keep
// insertion order. An empty index yields an empty slice.
func (m *MemoryIndex) Query(_ context.Context, vec []float32, k int) ([]domain.ScoredResult, error) {
	if err := domain.ValidateK(k); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return []domain.ScoredResult{}, nil
	}
	if len(vec) != m.dim {
		return nil, &domain.DimensionError{Expected: m.dim, Got: len(vec)}
	}

	type hit struct {
		pos   int
		score float64
	}
	qn := norm(vec)
	hits := make([]hit, len(m.entries))
	for i, e := range m.entries {
		hits[i] = hit{pos: i, score: cosine(vec, e.vec, qn, e.norm)}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(b.score, a.score)
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]domain.ScoredResult, k)
	for i, h := range hits[:k] {
		e := m.entries[h.pos]
		out[i] = domain.ScoredResult{
			ID:       e.id,
			DocID:    e.chunk.DocID,
			Content:  e.chunk.Text,
			Metadata: e.chunk.Metadata.Clone(),
			Score:    h.score,
		}
	}
	return out, nil
}

// Count returns the number of live entries.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Clear drops every entry and forgets the established dimension.
func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.dim = 0
	return nil
}

// Stats summarises the index for status reporting.
type Stats struct {
	Entries   int `json:"entries"`
	Documents int `json:"documents"`
	Dimension int `json:"dimension"`
}

// Stats returns entry, document and dimension counts.
func (m *MemoryIndex) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make(map[string]struct{})
	for _, e := range m.entries {
		docs[e.chunk.DocID] = struct{}{}
	}
	return Stats{Entries: len(m.entries), Documents: len(docs), Dimension: m.dim}
}

// Cosine returns the cosine similarity of a and b in double precision.
// A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, b, norm(a), norm(b))
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	s := dot / (na * nb)
	// Rounding can push |s| a hair past 1.
	return max(-1, min(1, s))
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
