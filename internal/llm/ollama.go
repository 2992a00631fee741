// Package llm is the client for the local generative model server and
// the embedding fallback used when no server is reachable.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"engram/internal/logging"
)

// Client talks to an Ollama-compatible HTTP server.
type Client struct {
	baseURL    string
	model      string
	embedModel string
	client     *http.Client
}

// GenerateOptions tunes one generate call.
type GenerateOptions struct {
	// JSONFormat requests format:"json" so the response parses strictly.
	JSONFormat bool
	// NumPredict caps the response length; 0 means server default.
	NumPredict int
	// Images holds raw image bytes for multimodal models.
	Images [][]byte
	// Model overrides the default model for this call.
	Model string
}

// NewClient builds a client for the given server.
func NewClient(baseURL, model, embedModel string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: timeout},
	}
}

// Model returns the configured generative model name.
func (c *Client) Model() string { return c.model }

// Available probes the server with a tags listing.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logging.LLMDebug("Availability probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Generate runs one non-streaming completion and returns the response
// text.
func (c *Client) Generate(ctx context.Context, prompt, system string, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	if system != "" {
		body["system"] = system
	}
	if opts.JSONFormat {
		body["format"] = "json"
	}
	if opts.NumPredict > 0 {
		body["options"] = map[string]any{"num_predict": opts.NumPredict}
	}
	if len(opts.Images) > 0 {
		images := make([]string, len(opts.Images))
		for i, img := range opts.Images {
			images[i] = base64.StdEncoding.EncodeToString(img)
		}
		body["images"] = images
	}

	timer := logging.StartTimer(logging.CategoryLLM, "Generate")
	defer timer.StopWithThreshold(5 * time.Second)

	raw, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("failed to generate: %w", err)
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	logging.LLMDebug("Generated %d chars with %s", len(resp.Response), model)
	return resp.Response, nil
}

// GenerateJSON runs a format:"json" completion and unmarshals the
// response into out.
func (c *Client) GenerateJSON(ctx context.Context, prompt, system string, numPredict int, out any) error {
	text, err := c.Generate(ctx, prompt, system, GenerateOptions{JSONFormat: true, NumPredict: numPredict})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), out); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

// Embed returns the embedding of one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":  c.embedModel,
		"prompt": text,
	}
	raw, err := c.post(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("failed to embed: %w", err)
	}
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("failed to embed: empty embedding")
	}
	return resp.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
