package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"engram/internal/capture"
	"engram/internal/types"
	"engram/internal/worker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Scan paths and drain the ingest queue once",
	Long: `One-shot ingestion: scans the given paths (or the configured watch
roots), enqueues changed files, and runs the worker until the queue is
empty. Useful for first imports and scripting.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	roots := args
	if len(roots) == 0 {
		roots = a.cfg.Watcher.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no paths given and no watcher roots configured")
	}

	w := capture.NewWatcher(a.cfg, a.store)
	total := 0
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("cannot scan %s: %w", root, err)
		}
		n, err := w.ScanPath(ctx, abs)
		if err != nil {
			return err
		}
		total += n
	}
	fmt.Printf("Enqueued %d file(s)\n", total)

	outcomes, err := worker.New(a.store, a.orch, 0).Drain(ctx)
	if err != nil {
		return err
	}
	for _, out := range outcomes {
		switch out.Status {
		case types.StatusIdempotentSkip:
			fmt.Printf("  skip  %s (already ingested)\n", out.MemoryID)
		case types.StatusOK:
			fmt.Printf("  ok    %s via %s (trace %s)\n", out.MemoryID, out.Pipeline, out.TraceID)
		default:
			fmt.Printf("  %-5s %s via %s\n", out.Status, out.MemoryID, out.Pipeline)
		}
	}
	fmt.Printf("Processed %d job(s)\n", len(outcomes))
	return nil
}
