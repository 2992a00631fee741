package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"engram/internal/logging"
)

// Qdrant is a minimal HTTP client for the Qdrant REST surface the
// engine uses: create-if-missing collections, waited upserts, and
// filtered vector search.
type Qdrant struct {
	baseURL string
	client  *http.Client
}

// NewQdrant builds a client for the given base URL.
func NewQdrant(baseURL string, timeout time.Duration) *Qdrant {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Qdrant{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Store.
func (q *Qdrant) Name() string { return "qdrant" }

// EnsureCollection implements Store: GET then PUT, with 409 (already
// created by a concurrent caller) tolerated.
func (q *Qdrant) EnsureCollection(ctx context.Context, collection string, dim int) error {
	status, _, err := q.do(ctx, http.MethodGet, "/collections/"+collection, nil)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	status, raw, err := q.do(ctx, http.MethodPut, "/collections/"+collection, body)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("failed to create collection: status %d: %s", status, raw)
	}
	logging.Vector("Ensured qdrant collection %s (%d dims)", collection, dim)
	return nil
}

// Upsert implements Store with a waited point write.
func (q *Qdrant) Upsert(ctx context.Context, collection, pointID string, vec []float32, payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body := map[string]any{
		"points": []map[string]any{
			{"id": uuidForm(pointID), "vector": vec, "payload": payload},
		},
	}
	status, raw, err := q.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body)
	if err != nil {
		return "", fmt.Errorf("failed to upsert point: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("failed to upsert point: status %d: %s", status, raw)
	}
	logging.VectorDebug("Upserted point %s into qdrant:%s", pointID, collection)
	return Ref("qdrant", collection, pointID), nil
}

// Search implements Store; exact-match payload filters become Qdrant
// must clauses.
func (q *Qdrant) Search(ctx context.Context, collection string, vec []float32, limit int, filter map[string]string) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}
	if len(filter) > 0 {
		var must []map[string]any
		for k, v := range filter {
			must = append(must, map[string]any{
				"key":   k,
				"match": map[string]any{"value": v},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}

	status, raw, err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to search points: status %d: %s", status, raw)
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		pointID := fmt.Sprintf("%v", r.ID)
		// Prefer the original id recorded in the payload over the
		// UUID-formatted storage id.
		if mid, ok := r.Payload["memory_id"].(string); ok && mid != "" {
			pointID = mid
		}
		hits = append(hits, Hit{PointID: pointID, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// Healthy implements Store with a collections listing probe.
func (q *Qdrant) Healthy(ctx context.Context) bool {
	status, _, err := q.do(ctx, http.MethodGet, "/collections", nil)
	return err == nil && status == http.StatusOK
}

func (q *Qdrant) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// uuidForm renders a 32-hex id in canonical UUID form, which Qdrant
// requires for string point ids. Other shapes pass through unchanged.
func uuidForm(id string) string {
	if len(id) != 32 {
		return id
	}
	return id[0:8] + "-" + id[8:12] + "-" + id[12:16] + "-" + id[16:20] + "-" + id[20:32]
}
