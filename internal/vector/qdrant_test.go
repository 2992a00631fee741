package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/text":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/text":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	q := NewQdrant(srv.URL, time.Second)
	require.NoError(t, q.EnsureCollection(context.Background(), "text", 384))

	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestQdrantEnsureCollectionToleratesConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	q := NewQdrant(srv.URL, time.Second)
	assert.NoError(t, q.EnsureCollection(context.Background(), "text", 384))
}

func TestQdrantUpsertWaitsAndFormatsID(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/text/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewQdrant(srv.URL, time.Second)
	id := "0123456789abcdef0123456789abcdef"
	ref, err := q.Upsert(context.Background(), "text", id, []float32{1, 0}, map[string]any{"memory_id": id})
	require.NoError(t, err)
	assert.Equal(t, "qdrant:text:"+id, ref)

	points := body["points"].([]any)
	point := points[0].(map[string]any)
	assert.Equal(t, "01234567-89ab-cdef-0123-456789abcdef", point["id"])
}

func TestQdrantSearchDecodesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/text/points/search", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["with_payload"])
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "01234567-89ab-cdef-0123-456789abcdef", "score": 0.92,
					"payload": map[string]any{"memory_id": "m1", "modality": "text"}},
			},
		})
	}))
	defer srv.Close()

	q := NewQdrant(srv.URL, time.Second)
	hits, err := q.Search(context.Background(), "text", []float32{1, 0}, 5, map[string]string{"modality": "text"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].PointID)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
}

func TestQdrantHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewQdrant(srv.URL, time.Second)
	assert.True(t, q.Healthy(context.Background()))

	srv.Close()
	assert.False(t, q.Healthy(context.Background()))
}
