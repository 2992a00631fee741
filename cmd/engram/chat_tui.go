package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"engram/internal/orchestrator"
	"engram/internal/types"
)

var (
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	verdictStyle = map[string]lipgloss.Style{
		types.VerdictPass:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		types.VerdictRevise:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		types.VerdictAbstain: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	citeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// chatTurn is one rendered exchange in the transcript.
type chatTurn struct {
	question string
	result   *orchestrator.ChatResult
	err      error
}

type chatResultMsg struct {
	turn chatTurn
}

// chatModel is the interactive chat interface.
type chatModel struct {
	app      *app
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	turns   []chatTurn
	waiting bool
	ready   bool
	width   int
}

func newChatModel(a *app) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about your memories..."
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &chatModel{app: a, input: ti, spinner: sp}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		inputHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - inputHeight
		}
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			return m, m.ask(question)
		}

	case chatResultMsg:
		m.waiting = false
		m.turns = append(m.turns, msg.turn)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, m.spinner.Tick
	}

	var inputCmd, vpCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, vpCmd)
}

// ask runs the chat pipeline off the UI loop.
func (m *chatModel) ask(question string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.app.orch.Chat(context.Background(), orchestrator.ChatRequest{
			Message:  question,
			TopK:     chatTopK,
			UseGraph: chatUseGraph,
			Hops:     chatHops,
		})
		return chatResultMsg{turn: chatTurn{question: question, result: res, err: err}}
	}
}

func (m *chatModel) renderTranscript() string {
	var sb strings.Builder
	for _, t := range m.turns {
		sb.WriteString(userStyle.Render("You: "+t.question) + "\n\n")
		if t.err != nil {
			sb.WriteString("Error: " + t.err.Error() + "\n\n")
			continue
		}
		sb.WriteString(m.renderAnswer(t.result))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *chatModel) renderAnswer(res *orchestrator.ChatResult) string {
	var sb strings.Builder

	answer := res.Answer
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(answer); err == nil {
			answer = rendered
		}
	}
	sb.WriteString(answer)

	style, ok := verdictStyle[res.Verdict]
	if !ok {
		style = statusStyle
	}
	sb.WriteString(style.Render("verdict: "+res.Verdict) + "\n")

	for i, c := range res.Citations {
		sb.WriteString(citeStyle.Render(fmt.Sprintf("  [%d] %s (%s): %q", i+1, c.MemoryID, c.SourceType, c.Quote)) + "\n")
	}
	return sb.String()
}

func (m *chatModel) View() string {
	if !m.ready {
		return "loading..."
	}
	status := ""
	if m.waiting {
		status = m.spinner.View() + statusStyle.Render(" retrieving and weaving...")
	}
	return m.viewport.View() + "\n" + status + "\n" + m.input.View()
}
