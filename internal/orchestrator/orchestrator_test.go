package orchestrator

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/config"
	"engram/internal/graph"
	"engram/internal/llm"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/tool"
	"engram/internal/tools"
	"engram/internal/types"
	"engram/internal/vector"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir

	st, err := store.Open(filepath.Join(dir, "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	vs, err := vector.NewLocal(filepath.Join(dir, "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	emb := llm.NewEmbedder(nil)
	engine := retrieval.NewEngine(st, vs, emb)
	deps := tools.Deps{
		Config:   cfg,
		Store:    st,
		Vectors:  vs,
		Embedder: emb,
		Engine:   engine,
	}

	reg := tool.NewRegistry()
	require.NoError(t, tools.RegisterAll(reg, deps))
	dispatcher := tool.NewDispatcher(reg, st)

	return New(cfg, st, dispatcher, graph.New(st), engine, deps), st
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func blobPayload(blobID, path, mime string, size int64) map[string]any {
	return map[string]any{
		"blob_id":    blobID,
		"source_id":  "src-" + blobID,
		"path":       path,
		"mime":       mime,
		"size_bytes": size,
	}
}

func TestIngestBlobDocPipeline(t *testing.T) {
	o, st := newTestOrchestrator(t)
	dir := t.TempDir()
	content := "Quarterly budget planning notes. We discussed hiring and the roadmap in detail."
	path := writeFixture(t, dir, "notes.txt", content)

	outcome, err := o.IngestBlob(context.Background(), blobPayload("b1", path, "text/plain", int64(len(content))))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, outcome.Status)
	assert.Equal(t, PipelineDoc, outcome.Pipeline)

	card, err := st.GetMemoryCard(outcome.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, "document", card.CardType)
	assert.Equal(t, content, card.ContentText)
	assert.Equal(t, "Quarterly budget planning notes.", card.Summary)
	assert.Equal(t, "file_capture", card.Metadata["source_type"])
	assert.Equal(t, "pre_read", card.Metadata["parser"])
	assert.NotEmpty(t, card.Metadata["text_vector_ref"])

	trace, err := st.GetTrace(outcome.TraceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, trace.Status)

	nodes, err := st.TraceNodes(outcome.TraceID)
	require.NoError(t, err)
	toolNames := map[string]bool{}
	for _, n := range nodes {
		toolNames[n.ToolName] = true
	}
	for _, name := range []string{"doc_parse", "summarizer", "extractor", "text_embed"} {
		assert.True(t, toolNames[name], "missing exec node for %s", name)
	}

	// The sequential chain links every node after the first.
	edges, err := st.TraceEdges(outcome.TraceID)
	require.NoError(t, err)
	assert.Len(t, edges, len(nodes)-1)
	for _, e := range edges {
		assert.Equal(t, "sequential", e.Condition)
	}

	// The card's graph node exists even without extracted entities.
	node, err := st.GetGraphNode(types.MemoryNodeID(outcome.MemoryID))
	require.NoError(t, err)
	assert.Equal(t, types.NodeMemoryCard, node.NodeType)
}

func TestIngestBlobIdempotentSkip(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFixture(t, dir, "notes.txt", "A short note about nothing much.")
	payload := blobPayload("b1", path, "text/plain", 32)

	first, err := o.IngestBlob(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, types.StatusOK, first.Status)

	second, err := o.IngestBlob(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdempotentSkip, second.Status)
	assert.Equal(t, first.MemoryID, second.MemoryID)
	assert.Empty(t, second.TraceID)
}

func TestIngestBlobOversizePlaceholder(t *testing.T) {
	o, st := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFixture(t, dir, "huge.bin", "x")

	outcome, err := o.IngestBlob(context.Background(), blobPayload("b1", path, "application/octet-stream", 64*1024*1024))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, outcome.Status)

	card, err := st.GetMemoryCard(outcome.MemoryID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(card.Summary, "Skipped large file: huge.bin"))
	assert.Empty(t, card.ContentText)
	assert.Equal(t, true, card.Metadata["oversize"])

	// No tools ran.
	nodes, err := st.TraceNodes(outcome.TraceID)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	trace, err := st.GetTrace(outcome.TraceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, trace.Status)
}

func tinyPNG(t *testing.T, dir string, width, height uint32) string {
	t.Helper()
	buf := make([]byte, 24)
	copy(buf, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
	copy(buf[12:16], []byte("IHDR"))
	binary.BigEndian.PutUint32(buf[16:20], width)
	binary.BigEndian.PutUint32(buf[20:24], height)
	path := filepath.Join(dir, "shot.png")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestIngestBlobImagePipeline(t *testing.T) {
	o, st := newTestOrchestrator(t)
	path := tinyPNG(t, t.TempDir(), 640, 480)

	// No OCR text is recoverable from this file, so the pipeline falls
	// back to the heuristic caption.
	outcome, err := o.IngestBlob(context.Background(), blobPayload("b1", path, "image/png", 24))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, outcome.Status)
	assert.Equal(t, PipelineImage, outcome.Pipeline)

	card, err := st.GetMemoryCard(outcome.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, "image", card.CardType)
	assert.Equal(t, "caption", card.Metadata["base_text_source"])
	assert.Contains(t, card.ContentText, "shot.png")
	assert.Equal(t, card.ContentText, card.Summary)
	assert.Equal(t, "ok", card.Metadata["vision_status"])
	assert.NotEmpty(t, card.Metadata["vision_vector_ref"])
	assert.Equal(t, false, card.Metadata["summary_llm"])

	nodes, err := st.TraceNodes(outcome.TraceID)
	require.NoError(t, err)
	toolNames := map[string]bool{}
	for _, n := range nodes {
		toolNames[n.ToolName] = true
	}
	for _, name := range []string{"ocr", "vision_embed", "image_caption", "text_embed"} {
		assert.True(t, toolNames[name], "missing exec node for %s", name)
	}

	// OCR and vision are independently rooted; caption and text_embed
	// both chain from the OCR node.
	edges, err := st.TraceEdges(outcome.TraceID)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	trace, err := st.GetTrace(outcome.TraceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, trace.Status)
}

func TestIngestCapture(t *testing.T) {
	o, st := newTestOrchestrator(t)
	dir := t.TempDir()
	body := "Alice Johnson presented the launch plan for Project Phoenix."
	path := writeFixture(t, dir, "abc123.txt", body)

	outcome, err := o.IngestCapture(context.Background(), map[string]any{
		"blob_id":      "b1",
		"source_id":    "src-1",
		"path":         path,
		"url":          "https://example.com/post",
		"title":        "Launch plan",
		"capture_type": "browser_highlight",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, outcome.Status)
	assert.Equal(t, PipelineCapture, outcome.Pipeline)

	card, err := st.GetMemoryCard(outcome.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, "capture", card.CardType)
	assert.Equal(t, "Launch plan", card.Summary)
	assert.Equal(t, body, card.ContentText)
	assert.Equal(t, "https://example.com/post", card.Metadata["url"])
	assert.Equal(t, "browser_highlight", card.Metadata["source_type"])

	trace, err := st.GetTrace(outcome.TraceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, trace.Status)

	// The heuristic extractor finds the proper nouns; they reach the graph.
	entID, _, _, _ := graph.CanonicalEntity("Alice Johnson", "Other")
	node, err := st.GetGraphNode(entID)
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestIngestCaptureIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFixture(t, dir, "abc123.txt", "Body text for a capture.")
	payload := map[string]any{
		"blob_id": "b1", "source_id": "s1", "path": path,
		"url": "https://example.com", "title": "T", "capture_type": "browser_bookmark",
	}

	first, err := o.IngestCapture(context.Background(), payload)
	require.NoError(t, err)
	second, err := o.IngestCapture(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdempotentSkip, second.Status)
	assert.Equal(t, first.MemoryID, second.MemoryID)
}

func TestSelectPipeline(t *testing.T) {
	cases := []struct {
		mime, path, want string
	}{
		{"image/png", "/x/a.png", PipelineImage},
		{"audio/mpeg", "/x/a.mp3", PipelineASR},
		{"text/plain", "/x/a.txt", PipelineDoc},
		{"", "/x/a.jpeg", PipelineImage},
		{"", "/x/a.flac", PipelineASR},
		{"application/octet-stream", "/x/a.webp", PipelineImage},
		{"", "/x/readme.md", PipelineDoc},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SelectPipeline(tc.mime, tc.path), "mime=%q path=%q", tc.mime, tc.path)
	}
}

func TestChatHappyPath(t *testing.T) {
	o, st := newTestOrchestrator(t)
	require.NoError(t, st.InsertMemoryCard(&types.MemoryCard{
		MemoryID:    "m1",
		CardType:    "note",
		Summary:     "Phoenix launch scheduled for November",
		ContentText: "The Phoenix launch is scheduled for November after the beta.",
		Metadata:    map[string]any{"source_type": "file_capture"},
		CreatedAt:   "2026-08-01T10:00:00Z",
	}))

	res, err := o.Chat(context.Background(), ChatRequest{Message: "When is the phoenix launch?"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, res.Status)
	assert.Equal(t, types.VerdictPass, res.Verdict)
	assert.Contains(t, res.Answer, "[m1]")

	require.NotEmpty(t, res.Evidence)
	assert.Equal(t, "m1", res.Evidence[0].MemoryID)
	assert.Contains(t, res.Evidence[0].Snippet, "scheduled for November")

	require.NotEmpty(t, res.Citations)
	assert.Equal(t, "m1", res.Citations[0].MemoryID)
	assert.Equal(t, "file_capture", res.Citations[0].SourceType)

	stepTools := map[string]bool{}
	for _, s := range res.Steps {
		stepTools[s.Tool] = true
	}
	for _, name := range []string{"retrieval", "weaver", "verifier"} {
		assert.True(t, stepTools[name], "missing step %s", name)
	}

	trace, err := st.GetTrace(res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, trace.Status)

	turns, err := st.ListTurns(10, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, res.Answer, turns[0].AssistantText)
	assert.Equal(t, types.VerdictPass, turns[0].Verdict)
	assert.Equal(t, res.TraceID, turns[0].TraceID)

	cits, err := st.TurnCitations(turns[0].TurnID)
	require.NoError(t, err)
	require.Len(t, cits, len(res.Citations))
	assert.Equal(t, "m1", cits[0].MemoryID)
}

func TestChatAbstainsWithoutEvidence(t *testing.T) {
	o, st := newTestOrchestrator(t)

	res, err := o.Chat(context.Background(), ChatRequest{Message: "What did I read about dragons?"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, res.Status)
	assert.Equal(t, types.VerdictAbstain, res.Verdict)
	assert.Contains(t, res.Answer, "enough evidence")
	assert.Empty(t, res.Citations)
	assert.Empty(t, res.Evidence)

	turns, err := st.ListTurns(10, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, types.VerdictAbstain, turns[0].Verdict)
}

func TestChatRejectsOversizedMessage(t *testing.T) {
	o, st := newTestOrchestrator(t)

	res, err := o.Chat(context.Background(), ChatRequest{Message: strings.Repeat("a", chatMaxMessageChars+1)})
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, res.Status)
	assert.Empty(t, res.Citations)

	trace, err := st.GetTrace(res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, trace.Status)

	// Nothing runs and no turn is persisted.
	turns, err := st.ListTurns(10, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChatRejectsNullByte(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	res, err := o.Chat(context.Background(), ChatRequest{Message: "hello\x00world"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, res.Status)
}

func TestValidateCitationsFiltersAndCaps(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	evidence := []Evidence{
		{MemoryID: "m1", Summary: strings.Repeat("s", 200), SourceType: "file_capture", CreatedAt: "2026-08-01T00:00:00Z"},
		{MemoryID: "m2", Summary: "short", SourceType: "browser_highlight"},
	}

	out := o.validateCitations(map[string]any{"citations": []any{
		map[string]any{"memory_id": "m1"},
		map[string]any{"memory_id": "ghost", "quote": "not in evidence"},
		map[string]any{"memory_id": "m2", "quote": "explicit quote"},
	}}, evidence)

	require.Len(t, out, 2)
	// Missing quote falls back to the summary, capped.
	assert.Equal(t, "m1", out[0].MemoryID)
	assert.Len(t, out[0].Quote, chatQuoteChars)
	assert.Equal(t, "file_capture", out[0].SourceType)
	assert.Equal(t, "explicit quote", out[1].Quote)
}

func TestBuildEvidenceSnippetKeepsRunesIntact(t *testing.T) {
	o, st := newTestOrchestrator(t)
	content := strings.Repeat("a", chatSnippetChars-1) + strings.Repeat("é", 4)
	require.NoError(t, st.InsertMemoryCard(&types.MemoryCard{
		MemoryID:    "m1",
		CardType:    "note",
		Summary:     "Accented note",
		ContentText: content,
		Metadata:    map[string]any{"source_type": "file_capture"},
		CreatedAt:   "2026-08-01T10:00:00Z",
	}))

	evidence := o.buildEvidence([]*retrieval.Result{{MemoryID: "m1"}}, 5)
	require.Len(t, evidence, 1)
	assert.LessOrEqual(t, len(evidence[0].Snippet), chatSnippetChars)
	assert.True(t, utf8.ValidString(evidence[0].Snippet))
}
