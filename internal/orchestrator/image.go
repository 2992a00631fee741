package orchestrator

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"engram/internal/tool"
	"engram/internal/tools"
	"engram/internal/types"
	"engram/internal/worker"
)

// Entity synthesis from zero-shot caption labels.
const (
	captionEntityMinConfidence = 0.20
	captionEntityMax           = 5
)

// runImagePipeline fans OCR and vision embedding out in parallel, then
// decides the card's base text from the OCR quality gate, falling back
// to captioning.
func (o *Orchestrator) runImagePipeline(ctx context.Context, r *run, source map[string]any) (*worker.IngestOutcome, error) {
	path := str(source, "path")
	title := filepath.Base(path)
	memoryID := types.NewID()

	// Independently rooted dispatches: no predecessor edge, and no
	// edge between the siblings.
	var ocrRes, visionRes *tool.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ocrRes = o.dispatch(gctx, r, "", "ocr", map[string]any{"path": path})
		return nil
	})
	g.Go(func() error {
		visionRes = o.dispatch(gctx, r, "", "vision_embed", map[string]any{
			"path":      path,
			"memory_id": memoryID,
		})
		return nil
	})
	_ = g.Wait()
	r.prevNode = ocrRes.ExecNodeID

	ocrText := ""
	ocrConfidence := -1.0
	ocrStatus := "failed"
	if ocrRes.OK() {
		ocrStatus = str(ocrRes.Outputs, "status")
		ocrText = strings.TrimSpace(str(ocrRes.Outputs, "text"))
		if c, ok := ocrRes.Outputs["avg_confidence"].(float64); ok {
			ocrConfidence = c
		}
	}
	ocrNode := ocrRes.ExecNodeID

	meaningful := ocrStatus == "success" && tools.MeaningfulOCRText(ocrText, ocrConfidence)
	keepAnyway := ocrStatus == "success" && !meaningful && tools.KeepOCRTextAnyway(ocrText)

	baseText := ""
	baseTextSource := ""
	captionModel := ""
	caption := ""
	var captionSubjects, captionTags []any

	if meaningful || keepAnyway {
		baseText = ocrText
		baseTextSource = "ocr"
	} else {
		// Caption is conditional on OCR falling short, so it chains
		// from the OCR node.
		capRes := o.dispatch(ctx, r, ocrNode, "image_caption", map[string]any{"path": path})
		if capRes.OK() {
			caption = strings.TrimSpace(str(capRes.Outputs, "caption"))
			captionModel = str(capRes.Outputs, "model")
			captionSubjects, _ = capRes.Outputs["subjects"].([]any)
			captionTags, _ = capRes.Outputs["tags"].([]any)
		}
		if caption != "" {
			baseText = caption
			baseTextSource = "caption"
		} else {
			baseText = "Image: " + title
			baseTextSource = "filename"
		}
	}

	metadata := map[string]any{
		"blob_id":          str(source, "blob_id"),
		"source_id":        str(source, "source_id"),
		"path":             path,
		"mime":             str(source, "mime"),
		"source_type":      "file_capture",
		"base_text_source": baseTextSource,
		"ocr_status":       ocrStatus,
		"ocr_text_len":     len(ocrText),
	}
	if ocrConfidence >= 0 {
		metadata["ocr_confidence"] = ocrConfidence
	}
	if caption != "" {
		metadata["caption"] = caption
		metadata["caption_model"] = captionModel
	}
	if visionRes.OK() {
		metadata["vision_status"] = "ok"
		metadata["vision_vector_ref"] = str(visionRes.Outputs, "vector_ref")
	} else {
		metadata["vision_status"] = types.StatusError
	}

	summary, entities, tags, actions := o.imageEnrichment(ctx, r, baseText, baseTextSource, captionModel, captionSubjects, captionTags, title, metadata)

	// The text embedding always chains from the OCR node.
	r.prevNode = ocrNode
	o.runEmbed(ctx, r, memoryID, baseText, metadata)
	o.runGraphBuild(ctx, r, memoryID, summary, entities, source)

	metadata["entities"] = entities
	metadata["tags"] = tags
	metadata["actions"] = actions

	status := types.StatusOK
	if ocrStatus != "success" && !visionRes.OK() {
		status = types.StatusError
	}
	if err := o.commitCard(memoryID, "image", summary, baseText, metadata); err != nil {
		o.closeTrace(r, types.StatusError)
		return nil, err
	}
	if status == types.StatusOK {
		o.closeTrace(r, types.StatusDone)
	} else {
		o.closeTrace(r, types.StatusError)
	}
	return &worker.IngestOutcome{
		MemoryID: memoryID,
		TraceID:  r.traceID,
		Pipeline: PipelineImage,
		Status:   status,
	}, nil
}

// imageEnrichment picks the summarize/extract strategy per base-text
// provenance: OCR text gets both LLM passes, a generative caption is
// its own summary, and a heuristic caption synthesizes entities from
// the zero-shot labels without touching the model.
func (o *Orchestrator) imageEnrichment(ctx context.Context, r *run, baseText, baseTextSource, captionModel string, subjects, captionTags []any, title string, metadata map[string]any) (string, []any, []any, []any) {
	if baseText == "" {
		return "Image: " + title, nil, nil, nil
	}

	heuristicCaption := baseTextSource != "ocr" &&
		(captionModel == "heuristic" || captionModel == "openclip-zeroshot" || captionModel == "")

	switch {
	case baseTextSource == "ocr":
		return o.runEnrichment(ctx, r, baseText, title, metadata)

	case heuristicCaption:
		var entities []any
		for _, raw := range subjects {
			label, ok := raw.(string)
			if !ok || label == "" {
				continue
			}
			entities = append(entities, map[string]any{
				"name":       label,
				"type":       "Topic",
				"confidence": captionEntityMinConfidence,
			})
			if len(entities) == captionEntityMax {
				break
			}
		}
		metadata["summary_llm"] = false
		return baseText, entities, captionTags, nil

	default:
		// Generative caption: it already is the summary; still harvest
		// entities from it.
		var entities, tags, actions []any
		extRes := o.dispatchNext(ctx, r, "extractor", map[string]any{
			"content_text": baseText,
			"title":        title,
		})
		if extRes.OK() {
			entities, _ = extRes.Outputs["entities"].([]any)
			tags, _ = extRes.Outputs["tags"].([]any)
			actions, _ = extRes.Outputs["actions"].([]any)
		}
		metadata["summary_llm"] = true
		return baseText, entities, tags, actions
	}
}
