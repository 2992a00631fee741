// Package tools holds the concrete processing tools the orchestrator
// dispatches: document parsing, OCR, ASR, captioning, embedding,
// summarization, entity extraction, graph building, retrieval, and the
// chat weave/verify pair. Every tool implements the uniform contract
// in internal/tool and goes through the same dispatch wrapper.
package tools

import (
	"engram/internal/config"
	"engram/internal/extract"
	"engram/internal/llm"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/vector"
)

// Deps carries the shared collaborators tool factories close over.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Vectors  vector.Store
	Embedder *llm.Embedder
	LLM      *llm.Client
	Tika     *extract.Tika
	Engine   *retrieval.Engine
}

// stringInput reads a string field from a tool inputs map.
func stringInput(inputs map[string]any, key string) string {
	s, _ := inputs[key].(string)
	return s
}

// intInput reads a numeric field, tolerating the float64 JSON decodes to.
func intInput(inputs map[string]any, key string) int {
	switch v := inputs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatInput(inputs map[string]any, key string) float64 {
	switch v := inputs[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func boolInput(inputs map[string]any, key string) bool {
	b, _ := inputs[key].(bool)
	return b
}
