package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"engram/internal/orchestrator"
	"engram/internal/types"
)

var (
	chatTopK     int
	chatUseGraph bool
	chatHops     int
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask questions over your memories",
	Long: `With a question argument, answers once and exits. Without arguments,
opens the interactive chat interface. Every answer cites the memory
cards it is grounded in, or abstains when the evidence is too thin.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "evidence size (default from config)")
	chatCmd.Flags().BoolVarP(&chatUseGraph, "graph", "g", true, "expand retrieval over the entity graph")
	chatCmd.Flags().IntVar(&chatHops, "hops", 1, "graph expansion hops (max 2)")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) > 0 {
		return chatOnce(cmd, a, strings.Join(args, " "))
	}

	m := newChatModel(a)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}

// chatOnce answers a single question on stdout, for scripting.
func chatOnce(cmd *cobra.Command, a *app, question string) error {
	res, err := a.orch.Chat(cmd.Context(), orchestrator.ChatRequest{
		Message:  question,
		TopK:     chatTopK,
		UseGraph: chatUseGraph,
		Hops:     chatHops,
	})
	if err != nil {
		return err
	}
	if res.Status == types.StatusRejected {
		return fmt.Errorf("question rejected: %s", res.Answer)
	}

	fmt.Println(res.Answer)
	if len(res.Citations) > 0 {
		fmt.Println()
		for i, c := range res.Citations {
			fmt.Printf("[%d] %s (%s): %q\n", i+1, c.MemoryID, c.SourceType, c.Quote)
		}
	}
	fmt.Printf("\nverdict: %s  trace: %s\n", res.Verdict, res.TraceID)
	return nil
}
