package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/tools"
	"engram/internal/types"
	"engram/internal/worker"
)

// IngestCapture runs the capture-embed path for a browser capture job:
// card from title or first sentence, text embedding, entity linking.
func (o *Orchestrator) IngestCapture(ctx context.Context, payload map[string]any) (*worker.IngestOutcome, error) {
	blobID := str(payload, "blob_id")
	path := str(payload, "path")
	url := str(payload, "url")
	title := str(payload, "title")
	captureType := str(payload, "capture_type")

	if memoryID, err := o.store.FindCardByBlobID(blobID); err == nil {
		logging.Orchestrator("Capture %s already ingested as %s", blobID, memoryID)
		return &worker.IngestOutcome{
			MemoryID: memoryID,
			Pipeline: PipelineSkip,
			Status:   types.StatusIdempotentSkip,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	traceID := types.NewID()
	r := &run{traceID: traceID}
	if err := o.store.OpenTrace(traceID, map[string]any{
		"blob_id":  blobID,
		"url":      url,
		"pipeline": PipelineCapture,
	}); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		o.closeTrace(r, types.StatusError)
		o.observeIngest(PipelineCapture, types.StatusError)
		return nil, fmt.Errorf("failed to read capture body: %w", err)
	}
	content := string(data)
	memoryID := types.NewID()

	summary := title
	if summary == "" {
		summary = tools.FallbackSummary(content)
	}

	metadata := map[string]any{
		"blob_id":     blobID,
		"source_id":   str(payload, "source_id"),
		"path":        path,
		"url":         url,
		"title":       title,
		"source_type": captureType,
	}

	var entities []any
	extRes := o.dispatchNext(ctx, r, "extractor", map[string]any{
		"content_text": content,
		"title":        title,
	})
	if extRes.OK() {
		entities, _ = extRes.Outputs["entities"].([]any)
		metadata["tags"], _ = extRes.Outputs["tags"].([]any)
		metadata["actions"], _ = extRes.Outputs["actions"].([]any)
	}

	o.runEmbed(ctx, r, memoryID, content, metadata)
	o.runGraphBuild(ctx, r, memoryID, summary, entities, map[string]any{
		"blob_id":   blobID,
		"source_id": str(payload, "source_id"),
		"path":      path,
		"mime":      "text/plain",
		"trace_id":  traceID,
	})

	metadata["entities"] = entities
	if err := o.commitCard(memoryID, "capture", summary, content, metadata); err != nil {
		o.closeTrace(r, types.StatusError)
		o.observeIngest(PipelineCapture, types.StatusError)
		return nil, err
	}
	o.closeTrace(r, types.StatusDone)
	o.observeIngest(PipelineCapture, types.StatusOK)
	return &worker.IngestOutcome{
		MemoryID: memoryID,
		TraceID:  traceID,
		Pipeline: PipelineCapture,
		Status:   types.StatusOK,
	}, nil
}
