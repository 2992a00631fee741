// Package extract is the client for the external text-extraction
// service (a Tika-compatible HTTP server).
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"engram/internal/logging"
)

// Tika extracts text and detects mime types over HTTP.
type Tika struct {
	baseURL string
	client  *http.Client
}

// NewTika builds a client for the given server.
func NewTika(baseURL string, timeout time.Duration) *Tika {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Tika{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ExtractText sends document bytes to PUT /tika and returns the
// extracted UTF-8 text.
func (t *Tika) ExtractText(ctx context.Context, data []byte) (string, error) {
	timer := logging.StartTimer(logging.CategoryExtract, "ExtractText")
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call extraction service: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}
	return string(raw), nil
}

// DetectMime sends document bytes to PUT /detect/stream and returns the
// detected mime type.
func (t *Tika) DetectMime(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/detect/stream", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call detection service: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Healthy reports whether the service answers at all.
func (t *Tika) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/tika", nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < http.StatusInternalServerError
}
