package tools

import (
	"context"
	"strings"

	"engram/internal/logging"
	"engram/internal/tool"
	"engram/internal/types"
)

type summarizerTool struct {
	deps Deps
}

func (t *summarizerTool) Name() string    { return "summarizer" }
func (t *summarizerTool) Version() string { return "1.0.0" }

const summarizerSystem = "You summarize captured notes and documents. Respond with JSON: {\"summary\": \"...\"}. The summary must be at most three sentences and under 400 characters."

func (t *summarizerTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	content := stringInput(env.Inputs, "content_text")
	title := stringInput(env.Inputs, "title")

	if t.deps.LLM != nil && t.deps.LLM.Available(ctx) {
		prompt := "Summarize the following"
		if title != "" {
			prompt += " (titled " + title + ")"
		}
		prompt += ":\n\n" + clip(content, 6000)

		var resp struct {
			Summary string `json:"summary"`
		}
		if err := t.deps.LLM.GenerateJSON(ctx, prompt, summarizerSystem, 200, &resp); err == nil {
			if summary := strings.TrimSpace(resp.Summary); summary != "" {
				return map[string]any{
					"summary":  types.TruncateAtSentence(summary, types.MaxSummaryChars),
					"llm_used": true,
				}, nil
			}
		} else {
			logging.Tools("Summarizer model failed, using fallback: %v", err)
		}
	}

	return map[string]any{
		"summary":  FallbackSummary(content),
		"llm_used": false,
	}, nil
}

// FallbackSummary takes the leading text cut at a sentence boundary.
func FallbackSummary(content string) string {
	return types.TruncateAtSentence(strings.TrimSpace(content), types.MaxSummaryChars)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
