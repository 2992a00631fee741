package tools

import (
	"context"
	"fmt"
	"os"

	"engram/internal/llm"
	"engram/internal/logging"
	"engram/internal/tool"
	"engram/internal/types"
	"engram/internal/vector"
)

type visionEmbedTool struct {
	deps Deps
}

func (t *visionEmbedTool) Name() string    { return "vision_embed" }
func (t *visionEmbedTool) Version() string { return "1.0.0" }

func (t *visionEmbedTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	path := stringInput(env.Inputs, "path")
	memoryID := stringInput(env.Inputs, "memory_id")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &tool.Error{Type: "vision_embed_failed", Message: fmt.Sprintf("read %s: %v", path, err)}
	}

	vec, model := t.embed(ctx, data)
	vec = vector.Normalize(vec)

	if err := t.deps.Vectors.EnsureCollection(ctx, vector.CollectionVision, len(vec)); err != nil {
		return nil, &tool.Error{Type: "vision_embed_failed", Message: fmt.Sprintf("collection: %v", err)}
	}
	ref, err := t.deps.Vectors.Upsert(ctx, vector.CollectionVision, memoryID, vec, map[string]any{
		"memory_id": memoryID,
		"modality":  "vision",
	})
	if err != nil {
		return nil, &tool.Error{Type: "vision_embed_failed", Message: fmt.Sprintf("upsert: %v", err)}
	}

	if t.deps.Store != nil {
		if err := t.deps.Store.InsertEmbedding(&types.Embedding{
			EmbeddingID: types.NewID(),
			MemoryID:    memoryID,
			Modality:    "vision",
			VectorRef:   ref,
		}); err != nil {
			return nil, &tool.Error{Type: "vision_embed_failed", Message: fmt.Sprintf("record: %v", err)}
		}
	}

	return map[string]any{
		"vector_ref": ref,
		"dim":        len(vec),
		"model":      model,
	}, nil
}

// embed tries the CLIP sidecar in local mode, falling back to a
// deterministic vector derived from the image bytes.
func (t *visionEmbedTool) embed(ctx context.Context, data []byte) ([]float32, string) {
	if t.deps.Config != nil && t.deps.Config.Models.OpenCLIPMode == "local" {
		clip := newCLIPClient(t.deps.Config.Models.CLIPURL, t.deps.Config.VectorTimeout())
		vec, err := clip.EmbedImage(ctx, data)
		if err == nil {
			return vec, "openclip"
		}
		logging.Tools("CLIP sidecar unavailable, using stub vision vector: %v", err)
	}
	return llm.StubVectorFromBytes(data, llm.StubDim), "stub"
}
