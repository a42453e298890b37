package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/engine/ingest"
	"github.com/kk32340/SampleMLCode/pkg/loader"
	"github.com/kk32340/SampleMLCode/pkg/metrics"
)

// indexCounter reports the index size after a scan.
type indexCounter interface {
	Count(ctx context.Context) (int, error)
}

// watcher ingests new or changed files from dir. A file is remembered by a
// content fingerprint once it ingested cleanly; failed files are retried on
// the next scan.
type watcher struct {
	dir       string
	stateFile string
	ingester  *ingest.Ingester
	index     indexCounter
	log       *slog.Logger

	m         *metrics.RAG
	files     *metrics.Counter
	loadErrs  *metrics.Counter
	lastScan  *metrics.Gauge
	queue     *metrics.Gauge
	processed map[string]string // doc id -> fingerprint
}

func newWatcher(dir, stateFile string, ing *ingest.Ingester, idx indexCounter, reg *metrics.Registry, log *slog.Logger) *watcher {
	return &watcher{
		dir:       dir,
		stateFile: stateFile,
		ingester:  ing,
		index:     idx,
		log:       log,
		m:         metrics.NewRAG(reg),
		files:     reg.Counter("rag_ingest_files_processed_total", "Files run through the pipeline."),
		loadErrs:  reg.Counter("rag_ingest_load_errors_total", "Files that could not be read."),
		lastScan:  reg.Gauge("rag_ingest_last_scan_timestamp", "Epoch of the last directory scan."),
		queue:     reg.Gauge("rag_ingest_queue_depth", "Files waiting in the current scan."),
		processed: loadState(stateFile, log),
	}
}

// scanResult summarises one scan.
type scanResult struct {
	Pending int
	Report  ingest.Report
	Skipped int
}

func (w *watcher) scan(ctx context.Context) scanResult {
	w.lastScan.Set(time.Now().Unix())
	docs, failed, err := loader.LoadDir(w.dir)
	if err != nil {
		w.log.Error("scan failed", "dir", w.dir, "err", err)
		return scanResult{}
	}
	for _, f := range failed {
		w.loadErrs.Inc()
		w.log.Warn("skipping unreadable file", "file", f.Path, "err", f.Err)
	}

	var res scanResult
	pending := make([]domain.Document, 0, len(docs))
	prints := make(map[string]string, len(docs))
	for _, d := range docs {
		fp := fingerprint(d.Content)
		if w.processed[d.ID] == fp {
			res.Skipped++
			continue
		}
		prints[d.ID] = fp
		pending = append(pending, d)
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		return res
	}

	w.queue.Set(int64(len(pending)))
	w.log.Info("processing files", "files", len(pending), "unchanged", res.Skipped)
	res.Report = w.ingester.Ingest(ctx, pending)
	w.queue.Set(0)

	r := res.Report
	w.files.Add(int64(len(pending)))
	w.m.RecordIngest(r.Ingested, r.Replaced, r.Chunks, len(r.Failures))

	bad := make(map[string]bool, len(r.Failures))
	for _, f := range r.Failures {
		bad[f.DocID] = true
		w.log.Warn("file had errors, will retry on next scan", "doc_id", f.DocID, "err", f.Error)
	}
	for id, fp := range prints {
		if !bad[id] {
			w.processed[id] = fp
		}
	}
	if err := saveState(w.stateFile, w.processed); err != nil {
		w.log.Error("save state failed", "file", w.stateFile, "err", err)
	}
	if n, err := w.index.Count(ctx); err == nil {
		w.m.IndexChunks.Set(int64(n))
	}
	w.log.Info("scan done", "ingested", r.Ingested, "chunks", r.Chunks, "failures", len(r.Failures))
	return res
}

func fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func loadState(path string, log *slog.Logger) map[string]string {
	m := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("read state failed, starting fresh", "file", path, "err", err)
		}
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("corrupt state file, starting fresh", "file", path, "err", err)
		return make(map[string]string)
	}
	return m
}

// saveState replaces the state file atomically.
func saveState(path string, m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ingest-state-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
