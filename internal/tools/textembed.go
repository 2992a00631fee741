package tools

import (
	"context"
	"fmt"

	"engram/internal/tool"
	"engram/internal/types"
	"engram/internal/vector"
)

type textEmbedTool struct {
	deps Deps
}

func (t *textEmbedTool) Name() string    { return "text_embed" }
func (t *textEmbedTool) Version() string { return "1.0.0" }

func (t *textEmbedTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	text := stringInput(env.Inputs, "text")
	memoryID := stringInput(env.Inputs, "memory_id")
	if text == "" {
		return nil, &tool.Error{Type: "embed_failed", Message: "empty text"}
	}

	vec, llmUsed, err := t.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, &tool.Error{Type: "embed_failed", Message: err.Error()}
	}

	if err := t.deps.Vectors.EnsureCollection(ctx, vector.CollectionText, len(vec)); err != nil {
		return nil, &tool.Error{Type: "embed_failed", Message: fmt.Sprintf("collection: %v", err)}
	}
	ref, err := t.deps.Vectors.Upsert(ctx, vector.CollectionText, memoryID, vec, map[string]any{
		"memory_id": memoryID,
		"modality":  "text",
	})
	if err != nil {
		return nil, &tool.Error{Type: "embed_failed", Message: fmt.Sprintf("upsert: %v", err)}
	}

	if t.deps.Store != nil {
		if err := t.deps.Store.InsertEmbedding(&types.Embedding{
			EmbeddingID: types.NewID(),
			MemoryID:    memoryID,
			Modality:    "text",
			VectorRef:   ref,
		}); err != nil {
			return nil, &tool.Error{Type: "embed_failed", Message: fmt.Sprintf("record: %v", err)}
		}
	}

	return map[string]any{
		"vector_ref": ref,
		"dim":        len(vec),
		"llm_used":   llmUsed,
	}, nil
}
