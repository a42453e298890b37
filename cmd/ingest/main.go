// Command ingest watches a directory for documents and runs new or changed
// files through the ingestion pipeline into the configured vector index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kk32340/SampleMLCode/engine/chunker"
	"github.com/kk32340/SampleMLCode/engine/ingest"
	"github.com/kk32340/SampleMLCode/pkg/app"
	"github.com/kk32340/SampleMLCode/pkg/config"
	"github.com/kk32340/SampleMLCode/pkg/metrics"
)

func main() {
	var (
		dataDir     = flag.String("dir", "./documents", "directory to watch for documents")
		configFile  = flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
		backend     = flag.String("index", config.BackendQdrant, "index backend (memory|qdrant)")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile   = flag.String("state", "", "processed files state (default <dir>/.ingest-state.json)")
		metricsPort = flag.Int("metrics-port", 9091, "port for /metrics, 0 disables")
		once        = flag.Bool("once", false, "scan once and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.Index.Backend = *backend
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := config.NewLogger(os.Stdout, cfg.LogLevel, true)
	slog.SetDefault(log)

	if *stateFile == "" {
		*stateFile = filepath.Join(*dataDir, ".ingest-state.json")
	}
	if err := run(cfg, log, *dataDir, *stateFile, *interval, *metricsPort, *once); err != nil {
		log.Error("ingest exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, dir, stateFile string, interval time.Duration, metricsPort int, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := app.NewProviders(ctx, cfg, log)
	if err != nil {
		return err
	}
	idx, closeIdx, err := app.OpenIndex(cfg)
	if err != nil {
		return err
	}
	defer closeIdx()

	ch, err := chunker.New(cfg.ChunkerOptions())
	if err != nil {
		return err
	}
	ingester := ingest.NewIngester(ingest.Deps{
		Embedder: providers.Embedder,
		Index:    idx,
		Chunker:  ch,
		Logger:   log,
	})

	reg := metrics.New()
	if metricsPort > 0 {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", metricsPort), Handler: reg.Handler(), ReadTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "port", metricsPort, "err", err)
			}
		}()
		defer srv.Close()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	w := newWatcher(dir, stateFile, ingester, idx, reg, log)
	log.Info("watching for documents", "dir", dir, "interval", interval, "index", cfg.Index.Backend)

	w.scan(ctx)
	if once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}
