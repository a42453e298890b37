package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/pkg/fn"
)

// Ingester runs batches of documents through the pipeline. A failing
// document is reported and never stops the rest of the batch.
type Ingester struct {
	pipeline fn.Stage[domain.Document, Stored]
	workers  int
	log      *slog.Logger
}

// NewIngester creates an Ingester over deps.
func NewIngester(deps Deps) *Ingester {
	deps = deps.withDefaults()
	return &Ingester{pipeline: NewPipeline(deps), workers: deps.Workers, log: deps.Logger}
}

// IngestOne runs a single document through the pipeline.
func (i *Ingester) IngestOne(ctx context.Context, doc domain.Document) (Stored, error) {
	return i.pipeline(ctx, doc).Unwrap()
}

// Ingest processes docs concurrently. When a batch names the same document
// id twice, the last occurrence is ingested and earlier ones are reported
// as failures.
func (i *Ingester) Ingest(ctx context.Context, docs []domain.Document) Report {
	report := Report{Failures: []Failure{}}

	last := make(map[string]int, len(docs))
	for n, d := range docs {
		last[d.ID] = n
	}

	todo := make([]domain.Document, 0, len(docs))
	for n, d := range docs {
		if last[d.ID] != n {
			err := fmt.Errorf("ingest: %w: duplicate id superseded later in batch", domain.ErrInvalidArgument)
			report.Failures = append(report.Failures, Failure{DocID: d.ID, Error: err.Error(), Err: err})
			continue
		}
		todo = append(todo, d)
	}

	results := fn.ParMapResult(ctx, todo, i.workers, i.pipeline)
	stored, errs := fn.Partition(results)
	for _, s := range stored {
		report.Ingested++
		report.Chunks += s.Chunks
		report.Replaced += s.Replaced
	}
	for n := range todo {
		if err, ok := errs[n]; ok {
			report.Failures = append(report.Failures, Failure{DocID: todo[n].ID, Error: err.Error(), Err: err})
			i.log.Warn("ingest: document failed", "doc_id", todo[n].ID, "err", err)
		}
	}

	i.log.Info("ingest: batch done",
		"documents", len(docs),
		"ingested", report.Ingested,
		"chunks", report.Chunks,
		"failures", len(report.Failures),
	)
	return report
}
