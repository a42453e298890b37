package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kk32340/SampleMLCode/engine/chunker"
	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/engine/semantic"
)

// mockEmbedder returns [len(text), 1] for every text and records batch sizes.
type mockEmbedder struct {
	mu      sync.Mutex
	batches []int
	failOn  string
	dims    int
	short   bool
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, len(texts))
	m.mu.Unlock()
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if m.failOn != "" && strings.Contains(t, m.failOn) {
			return nil, errors.New("backend unavailable")
		}
		v := []float32{float32(len(t)), 1}
		if m.dims > 2 {
			v = append(v, make([]float32, m.dims-2)...)
		}
		out = append(out, v)
	}
	if m.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type failingIndex struct {
	err error
}

func (f *failingIndex) Replace(context.Context, string, []domain.Record) (int, error) {
	return 0, f.err
}

func smallChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.Options{ChunkSize: 15, Overlap: 5})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func doc(id, content string) domain.Document {
	return domain.Document{ID: id, Content: content, Metadata: domain.Metadata{"source": id + ".txt"}}
}

func TestValidateStage(t *testing.T) {
	ctx := context.Background()
	if r := Validate(ctx, doc("a", "text")); r.IsErr() {
		t.Fatalf("expected ok, got %v", r.Error())
	}
	r := Validate(ctx, doc("", "text"))
	if !errors.Is(r.Error(), domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", r.Error())
	}
}

func TestChunkStage(t *testing.T) {
	r := NewChunk(smallChunker(t))(context.Background(), doc("a", "Hello world. This is a test."))
	cd, err := r.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if len(cd.Chunks) != 3 || cd.Chunks[0].Text != "Hello world." {
		t.Fatalf("unexpected chunks: %+v", cd.Chunks)
	}
	if cd.Chunks[2].Metadata[domain.MetaChunkIndex] != 2 || cd.Chunks[2].Metadata["source"] != "a.txt" {
		t.Fatalf("metadata not propagated: %+v", cd.Chunks[2].Metadata)
	}
}

func TestEmbedStageBatches(t *testing.T) {
	emb := &mockEmbedder{}
	chunks := make([]domain.Chunk, 5)
	for i := range chunks {
		chunks[i] = domain.Chunk{DocID: "a", Index: i, Text: strings.Repeat("x", i+1)}
	}
	r := NewEmbed(emb, 2)(context.Background(), ChunkedDoc{Doc: doc("a", ""), Chunks: chunks})
	ed, err := r.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if len(ed.Embeddings) != 5 || ed.Embeddings[4][0] != 5 {
		t.Fatalf("embeddings out of order: %v", ed.Embeddings)
	}
	if len(emb.batches) != 3 || emb.batches[0] != 2 || emb.batches[2] != 1 {
		t.Fatalf("unexpected batches: %v", emb.batches)
	}
}

func TestEmbedStageFailures(t *testing.T) {
	chunks := []domain.Chunk{{Text: "boom"}}
	r := NewEmbed(&mockEmbedder{failOn: "boom"}, 10)(context.Background(), ChunkedDoc{Chunks: chunks})
	if !errors.Is(r.Error(), domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", r.Error())
	}
	r = NewEmbed(&mockEmbedder{short: true}, 10)(context.Background(), ChunkedDoc{Chunks: chunks})
	if !errors.Is(r.Error(), domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable for short reply, got %v", r.Error())
	}
}

func TestStoreStageError(t *testing.T) {
	r := NewStore(&failingIndex{err: errors.New("down")})(context.Background(), EmbeddedDoc{})
	if r.IsOk() || !strings.Contains(r.Error().Error(), "ingest: store: down") {
		t.Fatalf("expected store error, got %v", r.Error())
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	idx := semantic.NewMemoryIndex()
	pipeline := NewPipeline(Deps{Embedder: &mockEmbedder{}, Index: idx, Chunker: smallChunker(t)})

	stored, err := pipeline(context.Background(), doc("greeting", "Hello world. This is a test.")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if stored.DocID != "greeting" || stored.Chunks != 3 || stored.Replaced != 0 {
		t.Fatalf("unexpected stored: %+v", stored)
	}
	if n, _ := idx.Count(context.Background()); n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}
}

func TestPipelineReplacesOnReingest(t *testing.T) {
	ctx := context.Background()
	idx := semantic.NewMemoryIndex()
	pipeline := NewPipeline(Deps{Embedder: &mockEmbedder{}, Index: idx, Chunker: smallChunker(t)})

	if r := pipeline(ctx, doc("a", "Hello world. This is a test.")); r.IsErr() {
		t.Fatal(r.Error())
	}
	stored, err := pipeline(ctx, doc("a", "Short now.")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if stored.Replaced != 3 || stored.Chunks != 1 {
		t.Fatalf("unexpected stored: %+v", stored)
	}
	res, _ := idx.Query(ctx, []float32{10, 1}, 10)
	if len(res) != 1 || res[0].Content != "Short now." {
		t.Fatalf("old chunks survived re-ingest: %+v", res)
	}
}

func TestPipelineEmptyDocumentClearsPrevious(t *testing.T) {
	ctx := context.Background()
	idx := semantic.NewMemoryIndex()
	pipeline := NewPipeline(Deps{Embedder: &mockEmbedder{}, Index: idx})

	_ = pipeline(ctx, doc("a", "Some text."))
	stored, err := pipeline(ctx, doc("a", "")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if stored.Chunks != 0 || stored.Replaced != 1 {
		t.Fatalf("unexpected stored: %+v", stored)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Fatalf("expected empty index, got %d", n)
	}
}

func TestIngestIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	idx := semantic.NewMemoryIndex()
	ing := NewIngester(Deps{Embedder: &mockEmbedder{failOn: "poison"}, Index: idx, Workers: 2})

	report := ing.Ingest(ctx, []domain.Document{
		doc("one", "First document."),
		doc("", "missing id"),
		doc("two", "This one is poison."),
		doc("three", "Third document."),
	})

	if report.Ingested != 2 || report.Chunks != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", report.Failures)
	}
	byID := map[string]Failure{}
	for _, f := range report.Failures {
		byID[f.DocID] = f
	}
	if !errors.Is(byID[""].Err, domain.ErrInvalidArgument) {
		t.Fatalf("missing id should be InvalidArgument: %v", byID[""].Err)
	}
	if !errors.Is(byID["two"].Err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("poison doc should be EmbeddingUnavailable: %v", byID["two"].Err)
	}
	if n, _ := idx.Count(ctx); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}

func TestIngestDimensionMismatchIsolated(t *testing.T) {
	ctx := context.Background()
	idx := semantic.NewMemoryIndex()
	first := NewIngester(Deps{Embedder: &mockEmbedder{}, Index: idx})
	if r := first.Ingest(ctx, []domain.Document{doc("a", "two dims")}); r.Ingested != 1 {
		t.Fatalf("seed failed: %+v", r)
	}

	second := NewIngester(Deps{Embedder: &mockEmbedder{dims: 3}, Index: idx})
	r := second.Ingest(ctx, []domain.Document{doc("b", "three dims")})
	if r.Ingested != 0 || len(r.Failures) != 1 || !errors.Is(r.Failures[0].Err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension failure, got %+v", r)
	}
	if n, _ := idx.Count(ctx); n != 1 {
		t.Fatalf("index changed on mismatch: %d", n)
	}
}

func TestReingestDimensionMismatchKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	idx := semantic.NewMemoryIndex()
	emb := &mockEmbedder{}
	ing := NewIngester(Deps{Embedder: emb, Index: idx})
	if r := ing.Ingest(ctx, []domain.Document{doc("a", "first version")}); r.Ingested != 1 {
		t.Fatalf("seed failed: %+v", r)
	}

	emb.dims = 3
	r := ing.Ingest(ctx, []domain.Document{doc("a", "second version")})
	if r.Ingested != 0 || len(r.Failures) != 1 || !errors.Is(r.Failures[0].Err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension failure, got %+v", r)
	}
	if n, _ := idx.Count(ctx); n != 1 {
		t.Fatalf("failed re-ingest changed the index: count=%d", n)
	}
	res, _ := idx.Query(ctx, []float32{13, 1}, 5)
	if len(res) != 1 || res[0].Content != "first version" {
		t.Fatalf("previous version lost: %+v", res)
	}
}

func TestIngestDuplicateIDsLastWins(t *testing.T) {
	ctx := context.Background()
	idx := semantic.NewMemoryIndex()
	ing := NewIngester(Deps{Embedder: &mockEmbedder{}, Index: idx})

	r := ing.Ingest(ctx, []domain.Document{doc("a", "old text"), doc("a", "new text")})
	if r.Ingested != 1 || len(r.Failures) != 1 || !errors.Is(r.Failures[0].Err, domain.ErrInvalidArgument) {
		t.Fatalf("unexpected report: %+v", r)
	}
	res, _ := idx.Query(ctx, []float32{8, 1}, 5)
	if len(res) != 1 || res[0].Content != "new text" {
		t.Fatalf("expected only the last document, got %+v", res)
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	ing := NewIngester(Deps{Embedder: &mockEmbedder{}, Index: semantic.NewMemoryIndex()})
	r := ing.Ingest(context.Background(), nil)
	if r.Ingested != 0 || r.Failures == nil || len(r.Failures) != 0 {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestIngestOne(t *testing.T) {
	ing := NewIngester(Deps{Embedder: &mockEmbedder{}, Index: semantic.NewMemoryIndex()})
	s, err := ing.IngestOne(context.Background(), doc("x", "Just one."))
	if err != nil || s.Chunks != 1 {
		t.Fatalf("unexpected: %+v, %v", s, err)
	}
}
