package orchestrator

import (
	"path/filepath"
	"strings"
)

// Pipeline names.
const (
	PipelineDoc     = "doc_parse"
	PipelineImage   = "image"
	PipelineASR     = "asr"
	PipelineCapture = "capture"
	PipelineSkip    = "skip"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tiff": true, ".webp": true, ".svg": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true,
	".m4a": true, ".aac": true, ".wma": true, ".opus": true,
}

// SelectPipeline routes a blob by mime prefix, falling back to the
// file extension when the mime is missing or generic.
func SelectPipeline(mime, path string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return PipelineImage
	case strings.HasPrefix(mime, "audio/"):
		return PipelineASR
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return PipelineImage
	case audioExtensions[ext]:
		return PipelineASR
	}
	return PipelineDoc
}
