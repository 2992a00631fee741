package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"engram/internal/config"
	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/types"
)

// Capture is one browser capture submitted over HTTP.
type Capture struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	CaptureType string `json:"capture_type"`
}

// captureTypes lists the accepted capture kinds.
var captureTypes = map[string]bool{
	"browser_highlight": true,
	"browser_bookmark":  true,
	"browser_visit":     true,
	"browser_research":  true,
}

// Validate checks the capture shape.
func (c *Capture) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("capture url must not be empty")
	}
	if c.Text == "" && c.Title == "" {
		return fmt.Errorf("capture needs a title or text")
	}
	if !captureTypes[c.CaptureType] {
		return fmt.Errorf("unknown capture_type %q", c.CaptureType)
	}
	return nil
}

// Save persists the capture body under the captures directory, records
// source and blob rows, and enqueues an ingest_capture job. Returns the
// job id and whether a new job was created.
func Save(cfg *config.Config, st *store.Store, c *Capture) (string, bool, error) {
	if err := c.Validate(); err != nil {
		return "", false, err
	}

	body := c.Text
	if body == "" {
		body = c.Title
	}
	sum := sha256.Sum256([]byte(body))
	sha := hex.EncodeToString(sum[:])

	dir := cfg.CapturesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create captures dir: %w", err)
	}
	path := filepath.Join(dir, sha+".txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write capture body: %w", err)
	}

	sourceID, err := st.UpsertSource("browser", c.URL)
	if err != nil {
		return "", false, err
	}
	blobID, err := st.UpsertBlob(sha, path, "text/plain", int64(len(body)))
	if err != nil {
		return "", false, err
	}

	jobID, created, err := st.EnqueueJob(types.JobIngestCapture, map[string]any{
		"blob_id":      blobID,
		"source_id":    sourceID,
		"path":         path,
		"url":          c.URL,
		"title":        c.Title,
		"capture_type": c.CaptureType,
		"size_bytes":   int64(len(body)),
	})
	if err != nil {
		return "", false, err
	}
	if created {
		logging.Watcher("Capture %s queued (job %s, %s)", c.CaptureType, jobID, c.URL)
	}
	return jobID, created, nil
}
