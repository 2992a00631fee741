package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent chat turns",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of turns")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	turns, err := a.store.ListTurns(historyLimit, 0)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Println("No chat history yet.")
		return nil
	}
	ids := make([]string, len(turns))
	for i, t := range turns {
		ids[i] = t.TurnID
	}
	counts, err := a.store.CountTurnCitations(ids)
	if err != nil {
		return err
	}

	for _, t := range turns {
		fmt.Printf("%s  [%s, %d citation(s)]\n", t.CreatedAt.Format("2006-01-02 15:04"), t.Verdict, counts[t.TurnID])
		fmt.Printf("  Q: %s\n", firstLine(t.UserText))
		fmt.Printf("  A: %s\n\n", firstLine(t.AssistantText))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:160] + "..."
	}
	return s
}
