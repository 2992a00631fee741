package tools

import (
	"context"

	"engram/internal/tool"
)

// Weave runs the weaver logic directly, outside the dispatch wrapper.
// The orchestrator uses it to pre-compute the answer, then dispatches
// the weaver tool with the result as _llm_override so the call is
// traced without a second model invocation.
func Weave(ctx context.Context, deps Deps, question string, evidence []any) map[string]any {
	w := &weaverTool{deps: deps}
	out, err := w.Execute(ctx, tool.NewEnvelope("orchestrator", "weaver", map[string]any{
		"question": question,
		"evidence": evidence,
	}))
	if err != nil || out == nil {
		return StubWeave(evidence)
	}
	return out
}

// Verify is the direct counterpart of Weave for the verifier.
func Verify(ctx context.Context, deps Deps, question, answer string, evidence []any) map[string]any {
	v := &verifierTool{deps: deps}
	out, err := v.Execute(ctx, tool.NewEnvelope("orchestrator", "verifier", map[string]any{
		"question": question,
		"answer":   answer,
		"evidence": evidence,
	}))
	if err != nil || out == nil {
		return HeuristicVerify(answer, evidence)
	}
	return out
}
