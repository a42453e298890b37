package metrics

import "time"

// RAG groups the pipeline metrics shared by the API server and the ingest
// worker.
type RAG struct {
	DocsIngested   *Counter
	ChunksReplaced *Counter
	ChunksStored   *Counter
	IngestFailures *Counter
	IndexChunks    *Gauge

	Queries        *Counter
	QueryErrors    *Counter
	ComposerErrors *Counter
	QueryLatency   *Histogram
}

// NewRAG registers the pipeline metrics on r.
func NewRAG(r *Registry) *RAG {
	return &RAG{
		DocsIngested:   r.Counter("rag_documents_ingested_total", "Documents stored in the index."),
		ChunksReplaced: r.Counter("rag_chunks_replaced_total", "Old chunks removed when a document was re-ingested."),
		ChunksStored:   r.Counter("rag_chunks_stored_total", "Chunks written to the index."),
		IngestFailures: r.Counter("rag_ingest_failures_total", "Documents rejected or failed during ingestion."),
		IndexChunks:    r.Gauge("rag_index_chunks", "Chunks currently held by the index."),
		Queries:        r.Counter("rag_queries_total", "Questions answered."),
		QueryErrors:    r.Counter("rag_query_errors_total", "Questions that failed before an answer was composed."),
		ComposerErrors: r.Counter("rag_composer_errors_total", "Answers degraded by a generation failure."),
		QueryLatency:   r.Histogram("rag_query_duration_seconds", "End-to-end question latency.", nil),
	}
}

// RecordIngest adds the outcome of one ingestion batch.
func (m *RAG) RecordIngest(ingested, replaced, chunks, failures int) {
	m.DocsIngested.Add(int64(ingested))
	m.ChunksReplaced.Add(int64(replaced))
	m.ChunksStored.Add(int64(chunks))
	m.IngestFailures.Add(int64(failures))
}

// RecordQuery observes one question started at start.
func (m *RAG) RecordQuery(start time.Time, err error, degraded bool) {
	m.QueryLatency.Since(start)
	switch {
	case err != nil:
		m.QueryErrors.Inc()
	case degraded:
		m.ComposerErrors.Inc()
		m.Queries.Inc()
	default:
		m.Queries.Inc()
	}
}
