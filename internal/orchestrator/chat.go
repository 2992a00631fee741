package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"engram/internal/logging"
	"engram/internal/retrieval"
	"engram/internal/tools"
	"engram/internal/types"
)

// Chat input limits.
const (
	chatMaxMessageChars = 50000
	chatSnippetChars    = 800
	chatMaxCitations    = 8
	chatQuoteChars      = 120
)

// abstainMessage replaces the answer when the verifier abstains.
const abstainMessage = "I don't have enough evidence in my memories to answer that confidently."

// ChatRequest is one question against the memory store.
type ChatRequest struct {
	Message  string `json:"message"`
	TopK     int    `json:"top_k"`
	UseGraph bool   `json:"use_graph"`
	Hops     int    `json:"hops"`
}

// Evidence is one retrieved card shown to the weaver and the caller.
type Evidence struct {
	MemoryID   string   `json:"memory_id"`
	Summary    string   `json:"summary"`
	Snippet    string   `json:"snippet"`
	SourceType string   `json:"source_type,omitempty"`
	CreatedAt  string   `json:"created_at"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Citation grounds a fragment of the answer in one memory card.
type Citation struct {
	MemoryID   string `json:"memory_id"`
	Quote      string `json:"quote"`
	SourceType string `json:"source_type,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// ChatResult is the full chat pipeline outcome.
type ChatResult struct {
	TraceID   string     `json:"trace_id"`
	Answer    string     `json:"answer"`
	Verdict   string     `json:"verdict"`
	Citations []Citation `json:"citations"`
	Evidence  []Evidence `json:"evidence"`
	Steps     []Step     `json:"steps"`
	Status    string     `json:"status"`
}

// Chat runs retrieve -> weave -> verify and persists the turn.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	timer := logging.StartTimer(logging.CategoryChat, "Chat")
	defer timer.StopWithInfo()

	traceID := types.NewID()
	r := &run{traceID: traceID}

	// Security check: oversized or null-byte input is rejected with a
	// persisted trace and no further processing.
	if len(req.Message) > chatMaxMessageChars || strings.ContainsRune(req.Message, 0) {
		if err := o.store.OpenTrace(traceID, map[string]any{"pipeline": "chat", "rejected": true}); err != nil {
			return nil, err
		}
		o.closeTrace(r, types.StatusRejected)
		logging.Chat("Rejected chat input (%d chars)", len(req.Message))
		return &ChatResult{
			TraceID: traceID,
			Answer:  "That message can't be processed.",
			Status:  types.StatusRejected,
		}, nil
	}

	if req.TopK <= 0 {
		req.TopK = o.cfg.Chat.TopK
	}
	if err := o.store.OpenTrace(traceID, map[string]any{
		"pipeline":    "chat",
		"message_len": len(req.Message),
		"top_k":       req.TopK,
	}); err != nil {
		return nil, err
	}

	// Retrieval runs wide, then the evidence list keeps the top-k.
	results, err := o.engine.Retrieve(ctx, retrieval.Request{
		Query:       req.Message,
		TopK:        req.TopK * 3,
		UseSemantic: true,
		UseGraph:    req.UseGraph,
		Hops:        req.Hops,
	})
	if err != nil {
		o.closeTrace(r, types.StatusError)
		return nil, err
	}
	evidence := o.buildEvidence(results, req.TopK)

	// Trace the retrieval that already happened.
	evidenceAny := toAny(evidence)
	o.dispatch(ctx, r, "", "retrieval", map[string]any{
		"query":             req.Message,
		"top_k":             req.TopK,
		"_results_override": toAny(results),
	})

	// Weave: pre-compute, then dispatch with the override so the call
	// is traced without a second model invocation.
	weaveOut := tools.Weave(ctx, o.deps, req.Message, evidenceAny)
	weaveRes := o.dispatchNext(ctx, r, "weaver", map[string]any{
		"question":      req.Message,
		"evidence":      evidenceAny,
		"_llm_override": weaveOut,
	})
	answer := str(weaveOut, "answer")
	if weaveRes.OK() {
		answer = str(weaveRes.Outputs, "answer")
	}
	citations := o.validateCitations(weaveRes.Outputs, evidence)

	// Verify, same pattern.
	verifyOut := tools.Verify(ctx, o.deps, req.Message, answer, evidenceAny)
	verifyRes := o.dispatchNext(ctx, r, "verifier", map[string]any{
		"question":      req.Message,
		"answer":        answer,
		"evidence":      evidenceAny,
		"_llm_override": verifyOut,
	})
	verdict := types.VerdictPass
	issues := []any{}
	if verifyRes.OK() {
		if v := str(verifyRes.Outputs, "verdict"); v != "" {
			verdict = v
		}
		issues, _ = verifyRes.Outputs["issues"].([]any)
		switch verdict {
		case types.VerdictRevise:
			if revised := str(verifyRes.Outputs, "revised_answer"); revised != "" {
				answer = revised
			}
		case types.VerdictAbstain:
			answer = abstainMessage
			for _, issue := range issues {
				if s, ok := issue.(string); ok && s != "" {
					answer += "\n- " + s
				}
			}
			citations = nil
		}
	}

	turnID := types.NewID()
	if err := o.store.InsertTurn(&types.ConversationTurn{
		TurnID:        turnID,
		UserText:      req.Message,
		AssistantText: answer,
		Verdict:       verdict,
		TraceID:       traceID,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		logging.OrchestratorError("Failed to persist turn: %v", err)
	}
	for _, c := range citations {
		if err := o.store.InsertCitation(&types.ChatCitation{
			CitationID: types.NewID(),
			TurnID:     turnID,
			MemoryID:   c.MemoryID,
			Quote:      c.Quote,
		}); err != nil {
			logging.OrchestratorError("Failed to persist citation: %v", err)
		}
	}

	o.closeTrace(r, types.StatusDone)
	if o.metrics != nil {
		o.metrics.ObserveChat(verdict)
	}
	logging.Chat("Turn %s: verdict=%s citations=%d evidence=%d", turnID, verdict, len(citations), len(evidence))
	return &ChatResult{
		TraceID:   traceID,
		Answer:    answer,
		Verdict:   verdict,
		Citations: citations,
		Evidence:  evidence,
		Steps:     r.steps,
		Status:    types.StatusOK,
	}, nil
}

// buildEvidence keeps the top-k results enriched with card content.
func (o *Orchestrator) buildEvidence(results []*retrieval.Result, topK int) []Evidence {
	if len(results) > topK {
		results = results[:topK]
	}
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.MemoryID
	}
	cards, err := o.store.GetMemoryCards(ids)
	if err != nil {
		logging.OrchestratorError("Failed to fetch evidence cards: %v", err)
		cards = nil
	}

	evidence := make([]Evidence, 0, len(results))
	for _, res := range results {
		ev := Evidence{
			MemoryID:   res.MemoryID,
			Summary:    res.Summary,
			SourceType: res.SourceType,
			CreatedAt:  res.CreatedAt,
			Score:      res.Score,
			Reasons:    res.Reasons,
		}
		if card, ok := cards[res.MemoryID]; ok {
			ev.Snippet = types.TruncateChars(card.ContentText, chatSnippetChars)
		}
		evidence = append(evidence, ev)
	}
	return evidence
}

// validateCitations keeps citations grounded in the evidence list,
// enriched with source metadata, capped.
func (o *Orchestrator) validateCitations(weaveOutputs map[string]any, evidence []Evidence) []Citation {
	byID := map[string]Evidence{}
	for _, ev := range evidence {
		byID[ev.MemoryID] = ev
	}

	raw, _ := weaveOutputs["citations"].([]any)
	var citations []Citation
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		memoryID := str(m, "memory_id")
		ev, ok := byID[memoryID]
		if !ok {
			continue
		}
		quote := str(m, "quote")
		if quote == "" {
			quote = ev.Summary
		}
		quote = types.TruncateChars(quote, chatQuoteChars)
		citations = append(citations, Citation{
			MemoryID:   memoryID,
			Quote:      quote,
			SourceType: ev.SourceType,
			CreatedAt:  ev.CreatedAt,
		})
		if len(citations) == chatMaxCitations {
			break
		}
	}
	return citations
}

// toAny converts a typed slice to the []any shape tool inputs use.
func toAny(v any) []any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
