package tools

import (
	"context"
	"strings"
	"unicode"

	"engram/internal/logging"
	"engram/internal/tool"
)

// Extraction caps.
const (
	extractorMinConfidence = 0.55
	extractorMaxEntities   = 30
	extractorMaxTags       = 12
	extractorMaxActions    = 10
)

type extractorTool struct {
	deps Deps
}

func (t *extractorTool) Name() string    { return "extractor" }
func (t *extractorTool) Version() string { return "1.0.0" }

const extractorSystem = `You extract structured knowledge from text. Respond with JSON:
{"entities": [{"name": "...", "type": "Person|Org|Place|Project|Topic|Technology|Component|Other", "confidence": 0.0}],
 "tags": ["..."], "actions": ["..."]}`

type extractedEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

func (t *extractorTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	content := stringInput(env.Inputs, "content_text")
	title := stringInput(env.Inputs, "title")

	var entities []extractedEntity
	var tags, actions []string
	llmUsed := false

	if t.deps.LLM != nil && t.deps.LLM.Available(ctx) {
		prompt := "Extract entities, topic tags, and action items"
		if title != "" {
			prompt += " (document title: " + title + ")"
		}
		prompt += ":\n\n" + clip(content, 6000)

		var resp struct {
			Entities []extractedEntity `json:"entities"`
			Tags     []string          `json:"tags"`
			Actions  []string          `json:"actions"`
		}
		if err := t.deps.LLM.GenerateJSON(ctx, prompt, extractorSystem, 600, &resp); err == nil {
			entities, tags, actions = resp.Entities, resp.Tags, resp.Actions
			llmUsed = true
		} else {
			logging.Tools("Extractor model failed, using heuristic: %v", err)
		}
	}
	if !llmUsed {
		entities = heuristicEntities(content)
	}

	// Confidence floor and hard caps.
	kept := make([]any, 0, len(entities))
	for _, e := range entities {
		if e.Confidence < extractorMinConfidence {
			continue
		}
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		kept = append(kept, map[string]any{
			"name":       e.Name,
			"type":       e.Type,
			"confidence": e.Confidence,
		})
		if len(kept) == extractorMaxEntities {
			break
		}
	}
	if len(tags) > extractorMaxTags {
		tags = tags[:extractorMaxTags]
	}
	if len(actions) > extractorMaxActions {
		actions = actions[:extractorMaxActions]
	}

	return map[string]any{
		"entities": kept,
		"tags":     toAnySlice(tags),
		"actions":  toAnySlice(actions),
		"llm_used": llmUsed,
	}, nil
}

// heuristicEntities finds runs of capitalized words, skipping sentence
// leads, as a crude offline extractor.
func heuristicEntities(content string) []extractedEntity {
	seen := map[string]bool{}
	var out []extractedEntity

	for _, sentence := range strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		words := strings.Fields(sentence)
		var run []string
		runStart := -1
		flush := func() {
			// Single capitalized words opening a sentence are noise.
			if len(run) >= 2 || (len(run) == 1 && runStart > 0) {
				name := strings.Join(run, " ")
				if !seen[strings.ToLower(name)] {
					seen[strings.ToLower(name)] = true
					out = append(out, extractedEntity{Name: name, Type: "Other", Confidence: 0.6})
				}
			}
			run, runStart = nil, -1
		}
		for i, w := range words {
			trimmed := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			if len(trimmed) >= 2 && unicode.IsUpper([]rune(trimmed)[0]) {
				if run == nil {
					runStart = i
				}
				run = append(run, trimmed)
				continue
			}
			flush()
		}
		flush()
	}
	return out
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
