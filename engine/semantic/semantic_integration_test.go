//go:build integration

package semantic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func testStore(t *testing.T) *VectorStore {
	t.Helper()
	vs, err := New(qdrantAddr(), fmt.Sprintf("integ_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		vs.DeleteCollection(context.Background())
		vs.Close()
	})
	return vs
}

func TestQdrant_InsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	vs := testStore(t)

	_, err := vs.Insert(ctx, []domain.Record{
		rec("a", 0, "first", 1, 0),
		rec("b", 0, "second", 0, 1),
		rec("a", 1, "third", 0.7, 0.7),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := vs.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res) != 2 || res[0].Content != "first" || res[1].Content != "third" {
		t.Fatalf("unexpected results %+v", res)
	}

	n, err := vs.DeleteByDocument(ctx, "a")
	if err != nil || n != 2 {
		t.Fatalf("delete: %d %v", n, err)
	}
	if c, _ := vs.Count(ctx); c != 1 {
		t.Fatalf("expected 1 remaining, got %d", c)
	}
}

func TestQdrant_SharedCollectionAcrossStores(t *testing.T) {
	ctx := context.Background()
	writer := testStore(t)
	if _, err := writer.Insert(ctx, []domain.Record{
		rec("a", 0, "old one", 1, 0),
		rec("a", 1, "old two", 0.9, 0.1),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	reader, err := New(qdrantAddr(), writer.collection)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	defer reader.Close()

	if c, err := reader.Count(ctx); err != nil || c != 2 {
		t.Fatalf("second store sees %d points (%v)", c, err)
	}
	if _, err := reader.Replace(ctx, "a", []domain.Record{rec("a", 0, "x", 1, 0, 0)}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected stored dimension enforced, got %v", err)
	}
	n, err := reader.Replace(ctx, "a", []domain.Record{rec("a", 0, "new", 1, 0)})
	if err != nil || n != 2 {
		t.Fatalf("replace: %d %v", n, err)
	}
	res, err := reader.Query(ctx, []float32{1, 0}, 5)
	if err != nil || len(res) != 1 || res[0].Content != "new" || res[0].Score != 1 {
		t.Fatalf("unexpected results %+v (%v)", res, err)
	}
	zero, err := reader.Query(ctx, []float32{0, 0}, 5)
	if err != nil || len(zero) != 1 || zero[0].Score != 0 {
		t.Fatalf("zero query: %+v (%v)", zero, err)
	}
}
