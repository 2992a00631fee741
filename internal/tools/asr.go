package tools

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"engram/internal/tool"
)

type asrTool struct {
	deps Deps
}

func (t *asrTool) Name() string    { return "asr" }
func (t *asrTool) Version() string { return "1.0.0" }

func (t *asrTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	path := stringInput(env.Inputs, "path")

	if t.deps.Config != nil && t.deps.Config.Models.WhisperMode == "local" {
		text, err := t.transcribeLocal(ctx, path)
		if err != nil {
			return nil, &tool.Error{Type: "asr_failed", Message: err.Error()}
		}
		return map[string]any{
			"content_text": text,
			"model":        "whisper-" + t.deps.Config.Models.WhisperModel,
			"llm_used":     true,
		}, nil
	}

	// Stub transcript keeps the pipeline coherent offline.
	return map[string]any{
		"content_text": "Audio note: " + filepath.Base(path),
		"model":        "stub",
		"llm_used":     false,
	}, nil
}

func (t *asrTool) transcribeLocal(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath("whisper")
	if err != nil {
		return "", fmt.Errorf("whisper binary not found: %w", err)
	}
	out, err := exec.CommandContext(ctx, bin,
		path,
		"--model", t.deps.Config.Models.WhisperModel,
		"--output_format", "txt",
		"--output_dir", "-",
	).Output()
	if err != nil {
		return "", fmt.Errorf("whisper failed: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", fmt.Errorf("whisper produced no transcript")
	}
	return text, nil
}
