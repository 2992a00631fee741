package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"engram/internal/retrieval"
)

var (
	searchTopK     int
	searchGraph    bool
	searchHops     int
	searchFrom     string
	searchTo       string
	searchSources  []string
	searchSemantic bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Hybrid search over memory cards",
	Long: `Runs the hybrid retrieval engine (lexical + semantic + graph) over
your memories and prints scored results with match reasons.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 10, "number of results")
	searchCmd.Flags().BoolVarP(&searchGraph, "graph", "g", false, "expand over the entity graph")
	searchCmd.Flags().IntVar(&searchHops, "hops", 1, "graph expansion hops (max 2)")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "only memories created at/after (ISO 8601)")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "only memories created at/before (ISO 8601)")
	searchCmd.Flags().StringSliceVar(&searchSources, "source", nil, "filter by source type")
	searchCmd.Flags().BoolVar(&searchSemantic, "semantic", true, "include the semantic stage")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.engine.Retrieve(cmd.Context(), retrieval.Request{
		Query:       strings.Join(args, " "),
		TopK:        searchTopK,
		UseSemantic: searchSemantic,
		UseGraph:    searchGraph,
		Hops:        searchHops,
		TimeFrom:    searchFrom,
		TimeTo:      searchTo,
		SourceTypes: searchSources,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. [%.3f] %s\n", i+1, r.Score, r.Summary)
		fmt.Printf("    id=%s source=%s created=%s reasons=%s\n",
			r.MemoryID, r.SourceType, r.CreatedAt, strings.Join(r.Reasons, ","))
		if r.GraphPath != nil && len(r.GraphPath.ViaEntityIDs) > 0 {
			fmt.Printf("    via %s\n", strings.Join(r.GraphPath.ViaEntityIDs, " -> "))
		}
	}
	return nil
}
