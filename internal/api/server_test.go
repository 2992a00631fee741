package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/config"
	"engram/internal/graph"
	"engram/internal/llm"
	"engram/internal/metrics"
	"engram/internal/orchestrator"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/tool"
	"engram/internal/tools"
	"engram/internal/types"
	"engram/internal/vector"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.API.CaptureAPIKey = "secret"

	st, err := store.Open(filepath.Join(dir, "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	vs, err := vector.NewLocal(filepath.Join(dir, "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	emb := llm.NewEmbedder(nil)
	engine := retrieval.NewEngine(st, vs, emb)
	deps := tools.Deps{Config: cfg, Store: st, Vectors: vs, Embedder: emb, Engine: engine}

	reg := tool.NewRegistry()
	require.NoError(t, tools.RegisterAll(reg, deps))
	gsvc := graph.New(st)
	orch := orchestrator.New(cfg, st, tool.NewDispatcher(reg, st), gsvc, engine, deps)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	orch.SetMetrics(m)

	srv := New(cfg, st, vs, engine, orch, gsvc, promReg)
	srv.SetMetrics(m)
	return srv, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func insertTestCard(t *testing.T, st *store.Store, id, summary string) {
	t.Helper()
	require.NoError(t, st.InsertMemoryCard(&types.MemoryCard{
		MemoryID:    id,
		CardType:    "note",
		Summary:     summary,
		ContentText: summary + " body",
		Metadata:    map[string]any{"source_type": "file_capture"},
		CreatedAt:   "2026-08-01T10:00:00Z",
	}))
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["vector"])
}

func TestCaptureRequiresKey(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()
	payload := map[string]any{
		"url": "https://example.com", "title": "T", "text": "highlighted text",
		"capture_type": "browser_highlight",
	}

	w := doJSON(t, r, http.MethodPost, "/v1/capture", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/capture", payload, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/v1/capture", payload, map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["job_id"])
	assert.Equal(t, true, body["created"])
}

func TestCaptureDeduplicates(t *testing.T) {
	s, _ := newTestServer(t)
	r := s.Router()
	payload := map[string]any{
		"url": "https://example.com", "text": "same text twice",
		"capture_type": "browser_bookmark",
	}
	auth := map[string]string{"X-API-Key": "secret"}

	first := doJSON(t, r, http.MethodPost, "/v1/capture", payload, auth)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := doJSON(t, r, http.MethodPost, "/v1/capture", payload, auth)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, false, decode(t, second)["created"])
}

func TestCaptureRejectsBadType(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodPost, "/v1/capture", map[string]any{
		"url": "https://example.com", "text": "x", "capture_type": "carrier_pigeon",
	}, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	insertTestCard(t, st, "m1", "quarterly budget planning notes")

	w := doJSON(t, s.Router(), http.MethodGet, "/v1/search?q=budget+planning", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].(map[string]any)["memory_id"])

	w = doJSON(t, s.Router(), http.MethodGet, "/v1/search", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCardEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	insertTestCard(t, st, "m1", "first card")
	insertTestCard(t, st, "m2", "second card")
	r := s.Router()

	w := doJSON(t, r, http.MethodGet, "/v1/cards", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["cards"].([]any), 2)

	w = doJSON(t, r, http.MethodGet, "/v1/cards/m1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "first card", decode(t, w)["summary"])

	w = doJSON(t, r, http.MethodGet, "/v1/cards/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	insertTestCard(t, st, "m1", "phoenix launch scheduled for november")
	r := s.Router()

	w := doJSON(t, r, http.MethodPost, "/v1/chat", map[string]any{"message": "when is the phoenix launch?"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, types.StatusOK, body["status"])
	assert.Equal(t, types.VerdictPass, body["verdict"])
	assert.NotEmpty(t, body["trace_id"])
	assert.NotEmpty(t, body["citations"])

	// The trace the chat produced is visible.
	w = doJSON(t, r, http.MethodGet, "/v1/traces/"+body["trace_id"].(string), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	traceBody := decode(t, w)
	assert.Equal(t, types.StatusDone, traceBody["trace"].(map[string]any)["status"])
	assert.NotEmpty(t, traceBody["nodes"])

	// So is the persisted turn.
	w = doJSON(t, r, http.MethodGet, "/v1/turns", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	turns := decode(t, w)["turns"].([]any)
	require.Len(t, turns, 1)

	// Missing message fails validation before the pipeline runs.
	w = doJSON(t, r, http.MethodPost, "/v1/chat", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDigestEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	now := time.Now().UTC()

	require.NoError(t, st.InsertMemoryCard(&types.MemoryCard{
		MemoryID:    "m1",
		CardType:    "note",
		Summary:     "Planning notes for the sprint.",
		ContentText: "We planned the sprint and assigned owners to each task.",
		Metadata: map[string]any{
			"source_type": "file_capture",
			"mime":        "text/plain",
			"path":        "/notes/sprint.txt",
			"actions":     []any{"Email Bob the deck"},
		},
		CreatedAt: now.Add(-2 * time.Hour).Format(time.RFC3339),
	}))
	require.NoError(t, st.InsertMemoryCard(&types.MemoryCard{
		MemoryID:    "m2",
		CardType:    "photo",
		Summary:     "Whiteboard snapshot from standup.",
		ContentText: "Sketch of the ingestion flow drawn on the whiteboard.",
		Metadata:    map[string]any{"source_type": "file_capture", "mime": "image/png"},
		CreatedAt:   now.Add(-1 * time.Hour).Format(time.RFC3339),
	}))
	// Outside the 7d window.
	require.NoError(t, st.InsertMemoryCard(&types.MemoryCard{
		MemoryID:    "m3",
		CardType:    "note",
		Summary:     "Stale notes from last quarter.",
		ContentText: "Old planning material, long since superseded.",
		Metadata:    map[string]any{"source_type": "file_capture", "mime": "text/plain"},
		CreatedAt:   now.Add(-10 * 24 * time.Hour).Format(time.RFC3339),
	}))

	phoenix := types.EntityNodeID("Project", "project phoenix")
	require.NoError(t, st.UpsertGraphNodes([]*types.GraphNode{
		{NodeID: phoenix, NodeType: "Project", Props: map[string]any{"canonical": "project phoenix", "name": "Project Phoenix"}},
	}))
	require.NoError(t, st.UpsertGraphEdges([]*types.GraphEdge{
		{FromNodeID: "mem:m1", ToNodeID: phoenix, EdgeType: types.EdgeAbout, Weight: 0.9},
		{FromNodeID: "mem:m2", ToNodeID: phoenix, EdgeType: types.EdgeAbout, Weight: 0.9},
	}))

	w := doJSON(t, s.Router(), http.MethodGet, "/v1/digest?window=7d", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	memories := body["recent_memories"].([]any)
	require.Len(t, memories, 2)
	newest := memories[0].(map[string]any)
	assert.Equal(t, "m2", newest["memory_id"])
	oldest := memories[1].(map[string]any)
	assert.Equal(t, "sprint.txt", oldest["title"])

	activity := body["activity_summary"].(map[string]any)
	assert.Equal(t, float64(2), activity["total"])
	assert.Equal(t, float64(1), activity["images"])
	assert.Equal(t, float64(1), activity["files"])

	reminders := body["reminders"].([]any)
	require.Len(t, reminders, 1)
	assert.Equal(t, "Email Bob the deck", reminders[0].(map[string]any)["text"])

	topics := body["emerging_topics"].([]any)
	require.Len(t, topics, 1)
	assert.Equal(t, "project phoenix", topics[0].(map[string]any)["entity"])
	assert.Equal(t, float64(2), topics[0].(map[string]any)["count_recent"])

	w = doJSON(t, s.Router(), http.MethodGet, "/v1/digest?window=1y", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphNodeEndpoint(t *testing.T) {
	s, st := newTestServer(t)

	alice := types.EntityNodeID("Person", "alice")
	require.NoError(t, st.UpsertGraphNodes([]*types.GraphNode{
		{NodeID: alice, NodeType: "Person", Props: map[string]any{"canonical": "alice", "name": "Alice"}},
		{NodeID: "mem:m1", NodeType: types.NodeMemoryCard},
	}))
	require.NoError(t, st.UpsertGraphEdge(&types.GraphEdge{
		FromNodeID: "mem:m1", ToNodeID: alice, EdgeType: types.EdgeMentions, Weight: 0.8,
	}))

	w := doJSON(t, s.Router(), http.MethodGet, "/v1/graph/nodes/"+alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, alice, body["node"].(map[string]any)["node_id"])
	assert.Len(t, body["neighbors"].([]any), 1)
	assert.Len(t, body["edges"].([]any), 1)

	w = doJSON(t, s.Router(), http.MethodGet, "/v1/graph/nodes/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTraceNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/v1/traces/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	insertTestCard(t, st, "m1", "phoenix launch scheduled for november")
	r := s.Router()

	doJSON(t, r, http.MethodPost, "/v1/chat", map[string]any{"message": "when is the phoenix launch?"}, nil)
	doJSON(t, r, http.MethodPost, "/v1/capture", map[string]any{
		"url": "https://example.com", "text": "counted capture",
		"capture_type": "browser_highlight",
	}, map[string]string{"X-API-Key": "secret"})

	w := doJSON(t, r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "engram_chat_turns_total")
	assert.Contains(t, w.Body.String(), "engram_captures_total 1")
}
