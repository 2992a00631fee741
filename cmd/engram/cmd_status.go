package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store counts and service health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	stats, err := a.store.GetStats()
	if err != nil {
		return err
	}

	fmt.Printf("engram %s\n", a.cfg.Version)
	fmt.Printf("  data dir:     %s\n", a.cfg.Storage.DataDir)
	fmt.Printf("  memory cards: %d\n", stats.MemoryCards)
	fmt.Printf("  graph:        %d nodes, %d edges\n", stats.GraphNodes, stats.GraphEdges)
	fmt.Printf("  embeddings:   %d\n", stats.Embeddings)
	fmt.Printf("  blobs:        %d (%d sources)\n", stats.Blobs, stats.Sources)
	fmt.Printf("  traces:       %d\n", stats.Traces)
	fmt.Printf("  chat turns:   %d\n", stats.Turns)

	if len(stats.Jobs) > 0 {
		statuses := make([]string, 0, len(stats.Jobs))
		for s := range stats.Jobs {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		fmt.Printf("  jobs:        ")
		for _, s := range statuses {
			fmt.Printf(" %s=%d", s, stats.Jobs[s])
		}
		fmt.Println()
	}

	fmt.Printf("  vector store: %s", a.vectors.Name())
	if a.vectors.Healthy(ctx) {
		fmt.Println(" (healthy)")
	} else {
		fmt.Println(" (UNREACHABLE)")
	}
	if a.llmClient.Available(ctx) {
		fmt.Printf("  model:        %s (available)\n", a.llmClient.Model())
	} else {
		fmt.Println("  model:        unavailable (deterministic fallbacks)")
	}
	return nil
}
