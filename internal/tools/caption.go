package tools

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"engram/internal/llm"
	"engram/internal/logging"
	"engram/internal/tool"
)

// Zero-shot caption thresholds.
const (
	captionSubjectMinScore = 0.20
	captionMaxSubjects     = 5
)

type captionTool struct {
	deps Deps
}

func (t *captionTool) Name() string    { return "image_caption" }
func (t *captionTool) Version() string { return "1.2.0" }

func (t *captionTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	path := stringInput(env.Inputs, "path")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &tool.Error{Type: "caption_failed", Message: fmt.Sprintf("read %s: %v", path, err)}
	}

	// First choice: a multimodal generative model.
	if t.deps.LLM != nil && t.deps.LLM.Available(ctx) {
		caption, err := t.deps.LLM.Generate(ctx,
			"Describe this image in one or two sentences. Mention visible text, objects, and setting.",
			"", llm.GenerateOptions{Images: [][]byte{data}, NumPredict: 120})
		if err == nil && strings.TrimSpace(caption) != "" {
			return map[string]any{
				"caption": strings.TrimSpace(caption),
				"model":   t.deps.LLM.Model(),
			}, nil
		}
		logging.Tools("Multimodal caption failed for %s: %v", path, err)
	}

	// Second choice: CLIP zero-shot labels composed into a caption.
	if t.deps.Config != nil && t.deps.Config.Models.OpenCLIPMode == "local" {
		clip := newCLIPClient(t.deps.Config.Models.CLIPURL, t.deps.Config.VectorTimeout())
		if labels, err := clip.Classify(ctx, data); err == nil {
			if out := zeroShotCaption(labels); out != nil {
				return out, nil
			}
		} else {
			logging.Tools("Zero-shot caption failed for %s: %v", path, err)
		}
	}

	// Last resort: a heuristic caption from the file itself.
	return map[string]any{
		"caption": HeuristicCaption(filepath.Base(path), data),
		"model":   "heuristic",
	}, nil
}

// zeroShotCaption builds a caption from scored labels; nil when no
// subject clears the threshold.
func zeroShotCaption(labels *ZeroShotResult) map[string]any {
	var subjects []string
	for _, s := range labels.Subjects {
		if s.Score >= captionSubjectMinScore {
			subjects = append(subjects, s.Label)
		}
		if len(subjects) == captionMaxSubjects {
			break
		}
	}
	if len(subjects) == 0 {
		return nil
	}

	caption := "Image of " + strings.Join(subjects, ", ")
	var tags []string
	if len(labels.Scenes) > 0 {
		caption += " in a " + labels.Scenes[0].Label + " setting"
	}
	for _, s := range labels.Scenes {
		tags = append(tags, s.Label)
	}
	for _, s := range labels.Styles {
		tags = append(tags, s.Label)
	}

	subjectsOut := make([]any, len(subjects))
	for i, s := range subjects {
		subjectsOut[i] = s
	}
	tagsOut := make([]any, len(tags))
	for i, s := range tags {
		tagsOut[i] = s
	}
	return map[string]any{
		"caption":  caption,
		"model":    "openclip-zeroshot",
		"subjects": subjectsOut,
		"tags":     tagsOut,
	}
}

// HeuristicCaption describes an image from its name and header bytes,
// e.g. "Image: chart.png (PNG, 640x480)".
func HeuristicCaption(name string, data []byte) string {
	format, w, h := imageDimensions(data)
	if format == "" {
		return "Image: " + name
	}
	if w == 0 || h == 0 {
		return fmt.Sprintf("Image: %s (%s)", name, format)
	}
	return fmt.Sprintf("Image: %s (%s, %dx%d)", name, format, w, h)
}

// imageDimensions parses PNG, GIF, and JPEG headers.
func imageDimensions(data []byte) (format string, w, h int) {
	switch {
	case len(data) >= 24 && string(data[1:4]) == "PNG":
		return "PNG", int(binary.BigEndian.Uint32(data[16:20])), int(binary.BigEndian.Uint32(data[20:24]))

	case len(data) >= 10 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "GIF", int(binary.LittleEndian.Uint16(data[6:8])), int(binary.LittleEndian.Uint16(data[8:10]))

	case len(data) >= 4 && data[0] == 0xFF && data[1] == 0xD8:
		jw, jh := jpegDimensions(data)
		return "JPEG", jw, jh
	}
	return "", 0, 0
}

// jpegDimensions walks JPEG segments to the first SOF marker.
func jpegDimensions(data []byte) (w, h int) {
	i := 2
	for i+9 < len(data) {
		if data[i] != 0xFF {
			i++
			continue
		}
		marker := data[i+1]
		// SOF0..SOF15 excluding DHT(C4), JPG(C8), DAC(CC).
		if marker >= 0xC0 && marker <= 0xCF && marker != 0xC4 && marker != 0xC8 && marker != 0xCC {
			h = int(binary.BigEndian.Uint16(data[i+5 : i+7]))
			w = int(binary.BigEndian.Uint16(data[i+7 : i+9]))
			return w, h
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 {
			return 0, 0
		}
		i += 2 + segLen
	}
	return 0, 0
}
