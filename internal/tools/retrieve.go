package tools

import (
	"context"
	"encoding/json"

	"engram/internal/retrieval"
	"engram/internal/tool"
)

type retrievalTool struct {
	deps Deps
}

func (t *retrievalTool) Name() string    { return "retrieval" }
func (t *retrievalTool) Version() string { return "1.0.0" }

// Execute runs the hybrid engine. The orchestrator may pass a
// pre-computed result list as _results_override so the retrieval that
// already happened is traced without running twice.
func (t *retrievalTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	if override, ok := env.Inputs["_results_override"]; ok {
		return map[string]any{"results": override}, nil
	}

	results, err := t.deps.Engine.Retrieve(ctx, retrieval.Request{
		Query:       stringInput(env.Inputs, "query"),
		TopK:        intInput(env.Inputs, "top_k"),
		UseSemantic: boolInput(env.Inputs, "use_semantic"),
		UseGraph:    boolInput(env.Inputs, "use_graph"),
		Hops:        intInput(env.Inputs, "hops"),
	})
	if err != nil {
		return nil, &tool.Error{Type: "retrieval_failed", Message: err.Error()}
	}

	// JSON round trip keeps the outputs map wire-shaped.
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, &tool.Error{Type: "retrieval_failed", Message: err.Error()}
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &tool.Error{Type: "retrieval_failed", Message: err.Error()}
	}
	return map[string]any{"results": out}, nil
}
