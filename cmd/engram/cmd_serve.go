package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"engram/internal/api"
	"engram/internal/capture"
	"engram/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: watcher, worker, HTTP API, and compaction",
	Long: `Starts the full engine: the filesystem watcher scans the configured
roots, the worker drains the ingest queue, the HTTP API serves capture
intake, chat, and search, and entity compaction runs on its schedule.
Stops cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("engram starting",
		zap.String("data_dir", a.cfg.Storage.DataDir),
		zap.String("addr", a.cfg.API.Addr),
		zap.Strings("watch_roots", a.cfg.Watcher.Roots),
		zap.String("vector_mode", a.cfg.Vector.Mode))

	if !a.llmClient.Available(ctx) {
		logger.Warn("generative model unreachable, running with deterministic fallbacks",
			zap.String("ollama_url", a.cfg.LLM.OllamaURL))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return capture.NewWatcher(a.cfg, a.store).Run(ctx)
	})

	g.Go(func() error {
		w := worker.New(a.store, a.orch, a.cfg.WorkerPollInterval())
		w.SetObserver(a.metrics)
		return w.Run(ctx)
	})

	g.Go(func() error {
		srv := api.New(a.cfg, a.store, a.vectors, a.engine, a.orch, a.graph, a.registry)
		srv.SetMetrics(a.metrics)
		return srv.Run(ctx)
	})

	if a.cfg.Compaction.Enabled {
		c := cron.New()
		_, err := c.AddFunc(a.cfg.Compaction.Schedule, func() {
			res, err := a.graph.Compact()
			if err != nil {
				logger.Error("compaction failed", zap.Error(err))
				return
			}
			logger.Info("compaction finished",
				zap.Int("merged_nodes", res.MergedNodes),
				zap.Int("repointed_edges", res.RepointedEdges))
		})
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	err = g.Wait()
	if err == context.Canceled {
		err = nil
	}
	logger.Info("engram stopped")
	return err
}
