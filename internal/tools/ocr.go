package tools

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"engram/internal/logging"
	"engram/internal/tool"
)

type ocrTool struct {
	deps Deps
}

func (t *ocrTool) Name() string    { return "ocr" }
func (t *ocrTool) Version() string { return "1.0.0" }

func (t *ocrTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	path := stringInput(env.Inputs, "path")

	bin, err := exec.LookPath("tesseract")
	if err != nil {
		// No OCR engine; report a deterministic failure so the caller
		// falls through to captioning.
		return map[string]any{
			"text":   "",
			"status": "failed",
			"error":  "tesseract_not_available",
		}, nil
	}

	out, err := exec.CommandContext(ctx, bin, path, "stdout", "tsv").Output()
	if err != nil {
		logging.Tools("OCR failed for %s: %v", path, err)
		return map[string]any{
			"text":   "",
			"status": "failed",
			"error":  "tesseract_error",
		}, nil
	}

	text, avgConf := parseTesseractTSV(string(out))
	return map[string]any{
		"text":           text,
		"status":         "success",
		"avg_confidence": avgConf,
	}, nil
}

// parseTesseractTSV extracts recognized words (level 5 rows) and the
// mean word confidence from tesseract's TSV output.
func parseTesseractTSV(tsv string) (string, float64) {
	var words []string
	var confSum float64
	var confCount int
	lastLine := ""

	var sb strings.Builder
	flush := func() {
		if len(words) > 0 {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(strings.Join(words, " "))
			words = words[:0]
		}
	}

	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 {
			continue // header
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		if fields[0] != "5" {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		lineKey := fields[1] + ":" + fields[2] + ":" + fields[3] + ":" + fields[4]
		if lineKey != lastLine {
			flush()
			lastLine = lineKey
		}
		words = append(words, word)
		confSum += conf
		confCount++
	}
	flush()

	if confCount == 0 {
		return sb.String(), 0
	}
	return sb.String(), confSum / float64(confCount)
}
