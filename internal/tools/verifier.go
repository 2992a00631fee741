package tools

import (
	"context"
	"strings"

	"engram/internal/logging"
	"engram/internal/tool"
	"engram/internal/types"
)

type verifierTool struct {
	deps Deps
}

func (t *verifierTool) Name() string    { return "verifier" }
func (t *verifierTool) Version() string { return "1.0.0" }

const verifierSystem = `You verify that an answer is supported by the given evidence. Respond with JSON:
{"verdict": "pass|revise|abstain", "revised_answer": "...", "issues": ["..."]}
Use "abstain" when the evidence cannot support any answer, "revise" when the answer overreaches but can be fixed.`

func (t *verifierTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	if override, ok := env.Inputs["_llm_override"].(map[string]any); ok {
		return override, nil
	}

	question := stringInput(env.Inputs, "question")
	answer := stringInput(env.Inputs, "answer")
	evidence, _ := env.Inputs["evidence"].([]any)

	if t.deps.LLM != nil && t.deps.LLM.Available(ctx) {
		var resp struct {
			Verdict       string   `json:"verdict"`
			RevisedAnswer string   `json:"revised_answer"`
			Issues        []string `json:"issues"`
		}
		prompt := weavePrompt(question, evidence) + "\nAnswer under review:\n" + answer
		if err := t.deps.LLM.GenerateJSON(ctx, prompt, verifierSystem, 300, &resp); err == nil {
			if verdict := normalizeVerdict(resp.Verdict); verdict != "" {
				return map[string]any{
					"verdict":        verdict,
					"revised_answer": strings.TrimSpace(resp.RevisedAnswer),
					"issues":         toAnySlice(resp.Issues),
					"llm_used":       true,
				}, nil
			}
		} else {
			logging.Tools("Verifier model failed, using heuristic: %v", err)
		}
	}

	return HeuristicVerify(answer, evidence), nil
}

func normalizeVerdict(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case types.VerdictPass:
		return types.VerdictPass
	case types.VerdictRevise:
		return types.VerdictRevise
	case types.VerdictAbstain:
		return types.VerdictAbstain
	}
	return ""
}

// HeuristicVerify applies the offline checks: no evidence means
// abstain; an answer that cites none of the evidence needs revision.
func HeuristicVerify(answer string, evidence []any) map[string]any {
	if len(evidence) == 0 {
		return map[string]any{
			"verdict":        types.VerdictAbstain,
			"revised_answer": "",
			"issues":         []any{"no supporting evidence was retrieved"},
			"llm_used":       false,
		}
	}

	cited := false
	for _, raw := range evidence {
		ev, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if id := stringInput(ev, "memory_id"); id != "" && strings.Contains(answer, "["+id+"]") {
			cited = true
			break
		}
	}
	if !cited {
		return map[string]any{
			"verdict":        types.VerdictRevise,
			"revised_answer": "",
			"issues":         []any{"answer does not cite any retrieved memory"},
			"llm_used":       false,
		}
	}

	return map[string]any{
		"verdict":        types.VerdictPass,
		"revised_answer": "",
		"issues":         []any{},
		"llm_used":       false,
	}
}
