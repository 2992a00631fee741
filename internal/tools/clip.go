package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// clipClient talks to the CLIP sidecar: image embeddings and zero-shot
// label scoring over a fixed vocabulary.
type clipClient struct {
	baseURL string
	client  *http.Client
}

func newCLIPClient(baseURL string, timeout time.Duration) *clipClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &clipClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// EmbedImage posts raw image bytes and returns the embedding.
func (c *clipClient) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	body, err := c.post(ctx, "/embed_image", data)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("sidecar returned an empty embedding")
	}
	return resp.Embedding, nil
}

// ZeroShotLabel is one scored vocabulary label.
type ZeroShotLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ZeroShotResult holds the sidecar's label scores by category.
type ZeroShotResult struct {
	Subjects []ZeroShotLabel `json:"subjects"`
	Scenes   []ZeroShotLabel `json:"scenes"`
	Styles   []ZeroShotLabel `json:"styles"`
}

// Classify posts raw image bytes for zero-shot labeling.
func (c *clipClient) Classify(ctx context.Context, data []byte) (*ZeroShotResult, error) {
	body, err := c.post(ctx, "/classify", data)
	if err != nil {
		return nil, err
	}
	var resp ZeroShotResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return &resp, nil
}

func (c *clipClient) post(ctx context.Context, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sidecar request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
