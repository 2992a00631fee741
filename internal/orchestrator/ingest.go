package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/tool"
	"engram/internal/tools"
	"engram/internal/types"
	"engram/internal/worker"
)

// IngestBlob runs the ingest pipeline for one discovered blob. The
// payload comes from the watcher's queue entry.
func (o *Orchestrator) IngestBlob(ctx context.Context, payload map[string]any) (*worker.IngestOutcome, error) {
	blobID := str(payload, "blob_id")
	sourceID := str(payload, "source_id")
	path := str(payload, "path")
	mime := str(payload, "mime")
	size := num(payload, "size_bytes")

	// Idempotency: a card already built from this blob short-circuits
	// everything, including the trace.
	if memoryID, err := o.store.FindCardByBlobID(blobID); err == nil {
		logging.Orchestrator("Blob %s already ingested as %s", blobID, memoryID)
		return &worker.IngestOutcome{
			MemoryID: memoryID,
			Pipeline: PipelineSkip,
			Status:   types.StatusIdempotentSkip,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	pipeline := SelectPipeline(mime, path)
	traceID := str(payload, "trace_id")
	if traceID == "" {
		traceID = types.NewID()
	}
	r := &run{traceID: traceID}
	if err := o.store.OpenTrace(traceID, map[string]any{
		"blob_id":   blobID,
		"source_id": sourceID,
		"path":      path,
		"mime":      mime,
		"pipeline":  pipeline,
	}); err != nil {
		return nil, err
	}
	logging.Orchestrator("Ingesting %s via %s pipeline (trace %s)", path, pipeline, traceID)

	// Oversize blobs get a placeholder card; no tools run.
	if size > o.cfg.MaxFileBytes() {
		memoryID := types.NewID()
		summary := fmt.Sprintf("Skipped large file: %s (%.1f MB)", filepath.Base(path), float64(size)/(1024*1024))
		if err := o.commitCard(memoryID, "document", summary, "", map[string]any{
			"blob_id":     blobID,
			"source_id":   sourceID,
			"path":        path,
			"mime":        mime,
			"source_type": "file_capture",
			"oversize":    true,
		}); err != nil {
			o.closeTrace(r, types.StatusError)
			return nil, err
		}
		o.closeTrace(r, types.StatusDone)
		o.observeIngest(pipeline, types.StatusOK)
		return &worker.IngestOutcome{MemoryID: memoryID, TraceID: traceID, Pipeline: pipeline, Status: types.StatusOK}, nil
	}

	source := map[string]any{
		"blob_id":   blobID,
		"source_id": sourceID,
		"path":      path,
		"mime":      mime,
		"trace_id":  traceID,
	}

	var outcome *worker.IngestOutcome
	var err error
	switch pipeline {
	case PipelineImage:
		outcome, err = o.runImagePipeline(ctx, r, source)
	case PipelineASR:
		outcome, err = o.runTextPipeline(ctx, r, source, "asr", "audio", "audio_note")
	default:
		outcome, err = o.runTextPipeline(ctx, r, source, "doc_parse", "document", "file_capture")
	}
	if err != nil {
		o.observeIngest(pipeline, types.StatusError)
		return nil, err
	}
	o.observeIngest(pipeline, outcome.Status)
	return outcome, nil
}

// runTextPipeline is the sequential doc-parse pipeline; the ASR
// pipeline is the same shape with asr in place of doc_parse.
func (o *Orchestrator) runTextPipeline(ctx context.Context, r *run, source map[string]any, parseTool, cardType, sourceType string) (*worker.IngestOutcome, error) {
	path := str(source, "path")
	title := filepath.Base(path)
	memoryID := types.NewID()

	parseInputs := map[string]any{
		"path":    path,
		"blob_id": str(source, "blob_id"),
		"mime":    str(source, "mime"),
	}
	if parseTool == "doc_parse" {
		if pre := preReadText(path); pre != "" {
			parseInputs["text"] = pre
		}
	}

	parsed := o.dispatchNext(ctx, r, parseTool, parseInputs)
	if !parsed.OK() {
		o.closeTrace(r, types.StatusError)
		return nil, fmt.Errorf("%s failed: %s", parseTool, errMessage(parsed))
	}
	content := str(parsed.Outputs, "content_text")

	metadata := map[string]any{
		"blob_id":     str(source, "blob_id"),
		"source_id":   str(source, "source_id"),
		"path":        path,
		"mime":        str(source, "mime"),
		"source_type": sourceType,
	}
	if parser := str(parsed.Outputs, "parser"); parser != "" {
		metadata["parser"] = parser
	}
	if model := str(parsed.Outputs, "model"); model != "" {
		metadata["asr_model"] = model
	}

	summary, entities, tags, actions := o.runEnrichment(ctx, r, content, title, metadata)
	o.runEmbed(ctx, r, memoryID, content, metadata)
	o.runGraphBuild(ctx, r, memoryID, summary, entities, source)

	metadata["entities"] = entities
	metadata["tags"] = tags
	metadata["actions"] = actions
	if err := o.commitCard(memoryID, cardType, summary, content, metadata); err != nil {
		o.closeTrace(r, types.StatusError)
		return nil, err
	}
	o.closeTrace(r, types.StatusDone)
	pipeline := PipelineDoc
	if parseTool == "asr" {
		pipeline = PipelineASR
	}
	return &worker.IngestOutcome{
		MemoryID: memoryID,
		TraceID:  r.traceID,
		Pipeline: pipeline,
		Status:   types.StatusOK,
	}, nil
}

// runEnrichment dispatches summarizer and extractor; both are
// non-fatal, with deterministic fallbacks.
func (o *Orchestrator) runEnrichment(ctx context.Context, r *run, content, title string, metadata map[string]any) (string, []any, []any, []any) {
	summary := ""
	sumRes := o.dispatchNext(ctx, r, "summarizer", map[string]any{
		"content_text": content,
		"title":        title,
	})
	if sumRes.OK() {
		summary = str(sumRes.Outputs, "summary")
		metadata["summary_llm"] = sumRes.Outputs["llm_used"]
	}
	if summary == "" {
		summary = tools.FallbackSummary(content)
		metadata["summary_llm"] = false
	}
	if summary == "" {
		summary = title
	}

	var entities, tags, actions []any
	extRes := o.dispatchNext(ctx, r, "extractor", map[string]any{
		"content_text": content,
		"title":        title,
	})
	if extRes.OK() {
		entities, _ = extRes.Outputs["entities"].([]any)
		tags, _ = extRes.Outputs["tags"].([]any)
		actions, _ = extRes.Outputs["actions"].([]any)
	}
	return summary, entities, tags, actions
}

// runEmbed dispatches text_embed; failure loses the vector, not the card.
func (o *Orchestrator) runEmbed(ctx context.Context, r *run, memoryID, content string, metadata map[string]any) {
	if strings.TrimSpace(content) == "" {
		return
	}
	embRes := o.dispatchNext(ctx, r, "text_embed", map[string]any{
		"text":      content,
		"memory_id": memoryID,
	})
	if embRes.OK() {
		metadata["text_vector_ref"] = str(embRes.Outputs, "vector_ref")
		metadata["embed_llm"] = embRes.Outputs["llm_used"]
	}
}

// runGraphBuild proposes and commits graph updates when entities exist.
func (o *Orchestrator) runGraphBuild(ctx context.Context, r *run, memoryID, summary string, entities []any, source map[string]any) {
	if len(entities) == 0 {
		if err := o.commitGraph(memoryID, summary, map[string]any{}, ""); err != nil {
			logging.OrchestratorError("Graph commit failed for %s: %v", memoryID, err)
		}
		return
	}
	gbRes := o.dispatchNext(ctx, r, "graph_builder", map[string]any{
		"memory_id": memoryID,
		"entities":  entities,
		"source":    source,
	})
	proposal := map[string]any{}
	if gbRes.OK() {
		proposal = gbRes.Outputs
	}
	if err := o.commitGraph(memoryID, summary, proposal, gbRes.CallID); err != nil {
		logging.OrchestratorError("Graph commit failed for %s: %v", memoryID, err)
	}
}

// commitCard persists the memory card with a UTC timestamp.
func (o *Orchestrator) commitCard(memoryID, cardType, summary, content string, metadata map[string]any) error {
	card := &types.MemoryCard{
		MemoryID:    memoryID,
		CardType:    cardType,
		Summary:     summary,
		ContentText: content,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.store.InsertMemoryCard(card); err != nil {
		return fmt.Errorf("failed to commit card %s: %w", memoryID, err)
	}
	logging.Orchestrator("Committed card %s (%s): %s", memoryID, cardType, summary)
	return nil
}

// preReadText reads text-like files up front so doc_parse skips its own
// file handling.
func preReadText(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md", ".markdown", ".rst", ".log", ".csv":
		data, err := os.ReadFile(path)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

func errMessage(res *tool.Result) string {
	if res.Error != nil {
		return res.Error.Message
	}
	return res.Status
}
