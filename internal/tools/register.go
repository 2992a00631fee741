package tools

import (
	"fmt"

	"engram/internal/tool"
)

// RegisterAll registers every processing tool against the registry.
func RegisterAll(reg *tool.Registry, deps Deps) error {
	registrations := []*tool.Registration{
		{
			Name:        "doc_parse",
			Version:     "1.1.0",
			Description: "Extract plain text from a document blob",
			InputSchema: tool.ObjectSchema([]string{"path"}, map[string]any{
				"path":    map[string]any{"type": "string"},
				"blob_id": map[string]any{"type": "string"},
				"mime":    map[string]any{"type": "string"},
				"text":    map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"content_text": map[string]any{"type": "string"},
				"mime":         map[string]any{"type": "string"},
				"parser":       map[string]any{"type": "string"},
			}),
			Factory: func() tool.Tool { return &docParseTool{deps: deps} },
		},
		{
			Name:        "ocr",
			Version:     "1.0.0",
			Description: "Optical character recognition over an image file",
			InputSchema: tool.ObjectSchema([]string{"path"}, map[string]any{
				"path": map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"text":           map[string]any{"type": "string"},
				"status":         map[string]any{"type": "string"},
				"avg_confidence": map[string]any{"type": "number"},
			}),
			Factory: func() tool.Tool { return &ocrTool{deps: deps} },
		},
		{
			Name:        "asr",
			Version:     "1.0.0",
			Description: "Speech-to-text over an audio file",
			InputSchema: tool.ObjectSchema([]string{"path"}, map[string]any{
				"path": map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"content_text": map[string]any{"type": "string"},
				"model":        map[string]any{"type": "string"},
			}),
			Factory: func() tool.Tool { return &asrTool{deps: deps} },
		},
		{
			Name:        "image_caption",
			Version:     "1.2.0",
			Description: "Describe an image with a generative model or heuristics",
			InputSchema: tool.ObjectSchema([]string{"path"}, map[string]any{
				"path": map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"caption":  map[string]any{"type": "string"},
				"model":    map[string]any{"type": "string"},
				"subjects": map[string]any{"type": "array"},
				"tags":     map[string]any{"type": "array"},
			}),
			Factory: func() tool.Tool { return &captionTool{deps: deps} },
		},
		{
			Name:        "text_embed",
			Version:     "1.0.0",
			Description: "Embed text and store the vector under the memory id",
			InputSchema: tool.ObjectSchema([]string{"text", "memory_id"}, map[string]any{
				"text":      map[string]any{"type": "string"},
				"memory_id": map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"vector_ref": map[string]any{"type": "string"},
				"dim":        map[string]any{"type": "integer"},
				"llm_used":   map[string]any{"type": "boolean"},
			}),
			Factory: func() tool.Tool { return &textEmbedTool{deps: deps} },
		},
		{
			Name:        "vision_embed",
			Version:     "1.0.0",
			Description: "Embed an image and store the vector under the memory id",
			InputSchema: tool.ObjectSchema([]string{"path", "memory_id"}, map[string]any{
				"path":      map[string]any{"type": "string"},
				"memory_id": map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"vector_ref": map[string]any{"type": "string"},
				"dim":        map[string]any{"type": "integer"},
			}),
			Factory: func() tool.Tool { return &visionEmbedTool{deps: deps} },
		},
		{
			Name:        "summarizer",
			Version:     "1.0.0",
			Description: "Summarize text into a short card summary",
			InputSchema: tool.ObjectSchema([]string{"content_text"}, map[string]any{
				"content_text": map[string]any{"type": "string"},
				"title":        map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"summary":  map[string]any{"type": "string"},
				"llm_used": map[string]any{"type": "boolean"},
			}),
			Factory: func() tool.Tool { return &summarizerTool{deps: deps} },
		},
		{
			Name:        "extractor",
			Version:     "1.0.0",
			Description: "Extract entities, tags, and action items from text",
			InputSchema: tool.ObjectSchema([]string{"content_text"}, map[string]any{
				"content_text": map[string]any{"type": "string"},
				"title":        map[string]any{"type": "string"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"entities": map[string]any{"type": "array"},
				"tags":     map[string]any{"type": "array"},
				"actions":  map[string]any{"type": "array"},
				"llm_used": map[string]any{"type": "boolean"},
			}),
			Factory: func() tool.Tool { return &extractorTool{deps: deps} },
		},
		{
			Name:        "graph_builder",
			Version:     "1.0.0",
			Description: "Propose graph nodes and edges for extracted entities",
			InputSchema: tool.ObjectSchema([]string{"memory_id"}, map[string]any{
				"memory_id": map[string]any{"type": "string"},
				"entities":  map[string]any{"type": "array"},
				"source":    map[string]any{"type": "object"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"nodes": map[string]any{"type": "array"},
				"edges": map[string]any{"type": "array"},
			}),
			Factory: func() tool.Tool { return &graphBuilderTool{} },
		},
		{
			Name:        "retrieval",
			Version:     "1.0.0",
			Description: "Hybrid retrieval over the memory store",
			InputSchema: tool.ObjectSchema([]string{"query"}, map[string]any{
				"query":        map[string]any{"type": "string"},
				"top_k":        map[string]any{"type": "integer"},
				"use_semantic": map[string]any{"type": "boolean"},
				"use_graph":    map[string]any{"type": "boolean"},
				"hops":         map[string]any{"type": "integer"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"results": map[string]any{"type": "array"},
			}),
			Factory: func() tool.Tool { return &retrievalTool{deps: deps} },
		},
		{
			Name:        "weaver",
			Version:     "1.0.0",
			Description: "Weave retrieved evidence into a cited answer",
			InputSchema: tool.ObjectSchema([]string{"question"}, map[string]any{
				"question": map[string]any{"type": "string"},
				"evidence": map[string]any{"type": "array"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"answer":    map[string]any{"type": "string"},
				"citations": map[string]any{"type": "array"},
				"llm_used":  map[string]any{"type": "boolean"},
			}),
			Factory: func() tool.Tool { return &weaverTool{deps: deps} },
		},
		{
			Name:        "verifier",
			Version:     "1.0.0",
			Description: "Verify a woven answer against its evidence",
			InputSchema: tool.ObjectSchema([]string{"question", "answer"}, map[string]any{
				"question": map[string]any{"type": "string"},
				"answer":   map[string]any{"type": "string"},
				"evidence": map[string]any{"type": "array"},
			}),
			OutputSchema: tool.ObjectSchema(nil, map[string]any{
				"verdict":        map[string]any{"type": "string"},
				"revised_answer": map[string]any{"type": "string"},
				"issues":         map[string]any{"type": "array"},
			}),
			Factory: func() tool.Tool { return &verifierTool{deps: deps} },
		},
	}

	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("failed to register %s: %w", r.Name, err)
		}
	}
	return nil
}
