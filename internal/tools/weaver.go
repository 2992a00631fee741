package tools

import (
	"context"
	"fmt"
	"strings"

	"engram/internal/logging"
	"engram/internal/tool"
)

type weaverTool struct {
	deps Deps
}

func (t *weaverTool) Name() string    { return "weaver" }
func (t *weaverTool) Version() string { return "1.0.0" }

const weaverSystem = `You answer questions strictly from the provided evidence. Cite memories inline as [memory_id]. Respond with JSON:
{"answer": "...", "citations": [{"memory_id": "...", "quote": "..."}]}
If the evidence does not answer the question, say so.`

func (t *weaverTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	// The orchestrator pre-computes the answer when the model is
	// reachable; the override keeps this call traced without a second
	// model invocation.
	if override, ok := env.Inputs["_llm_override"].(map[string]any); ok {
		return override, nil
	}

	question := stringInput(env.Inputs, "question")
	evidence, _ := env.Inputs["evidence"].([]any)

	if t.deps.LLM != nil && t.deps.LLM.Available(ctx) {
		var resp struct {
			Answer    string `json:"answer"`
			Citations []struct {
				MemoryID string `json:"memory_id"`
				Quote    string `json:"quote"`
			} `json:"citations"`
		}
		err := t.deps.LLM.GenerateJSON(ctx, weavePrompt(question, evidence), weaverSystem, 500, &resp)
		if err == nil && strings.TrimSpace(resp.Answer) != "" {
			citations := make([]any, 0, len(resp.Citations))
			for _, c := range resp.Citations {
				citations = append(citations, map[string]any{"memory_id": c.MemoryID, "quote": c.Quote})
			}
			return map[string]any{
				"answer":    strings.TrimSpace(resp.Answer),
				"citations": citations,
				"llm_used":  true,
			}, nil
		}
		logging.Tools("Weaver model failed, using stub: %v", err)
	}

	return StubWeave(evidence), nil
}

// weavePrompt lays out the question and numbered evidence snippets.
func weavePrompt(question string, evidence []any) string {
	var sb strings.Builder
	sb.WriteString("Question: " + question + "\n\nEvidence:\n")
	for i, raw := range evidence {
		ev, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		snippet := stringInput(ev, "snippet")
		if snippet == "" {
			snippet = stringInput(ev, "summary")
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, stringInput(ev, "memory_id"), snippet)
	}
	return sb.String()
}

// StubWeave lists the evidence as the answer when no model is reachable.
func StubWeave(evidence []any) map[string]any {
	var sb strings.Builder
	sb.WriteString("Here are the most relevant memories I found:\n")
	citations := make([]any, 0, len(evidence))
	for _, raw := range evidence {
		ev, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		memoryID := stringInput(ev, "memory_id")
		summary := stringInput(ev, "summary")
		fmt.Fprintf(&sb, "- [%s] %s\n", memoryID, summary)
		citations = append(citations, map[string]any{
			"memory_id": memoryID,
			"quote":     clip(summary, 120),
		})
	}
	return map[string]any{
		"answer":    sb.String(),
		"citations": citations,
		"llm_used":  false,
	}
}
