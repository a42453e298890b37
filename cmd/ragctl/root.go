package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kk32340/SampleMLCode/pkg/app"
	"github.com/kk32340/SampleMLCode/pkg/config"
	"github.com/kk32340/SampleMLCode/pkg/loader"
)

// cli carries state shared by subcommands.
type cli struct {
	cfg    *config.Config
	log    *slog.Logger
	newApp func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Retrieval-augmented answers over local documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.LogLevel = lvl
			}
			c.cfg = cfg
			c.log = config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, false)
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to YAML config file")
	root.PersistentFlags().String("log-level", "warn", "log level (debug|info|warn|error)")

	root.AddCommand(
		newChunkCmd(c),
		newAskCmd(c),
		newChatCmd(c),
	)
	return root
}

// indexDir builds an in-memory pipeline over every readable file in dir.
func (c *cli) indexDir(cmd *cobra.Command, dir string) (*app.App, error) {
	cfg := *c.cfg
	cfg.Index.Backend = config.BackendMemory

	a, err := c.newApp(cmd.Context(), &cfg, c.log)
	if err != nil {
		return nil, err
	}
	docs, failed, err := loader.LoadDir(dir)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, f := range failed {
		c.log.Warn("skipping file", "file", f.Path, "err", f.Err)
	}
	report := a.Ingester.Ingest(cmd.Context(), docs)
	for _, f := range report.Failures {
		c.log.Warn("ingest failed", "doc_id", f.DocID, "err", f.Error)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %d documents (%d chunks) from %s\n", report.Ingested, report.Chunks, dir)
	return a, nil
}
