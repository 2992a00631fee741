// Package capture feeds the ingestion queue: a polling filesystem
// watcher with an fsnotify early-wake, and the browser capture intake
// used by the HTTP surface.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"engram/internal/config"
	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/types"
)

// Watcher scans configured roots for new and changed files. Discovery
// is poll-driven; fsnotify events only shorten the wait until the next
// scan, so a dropped event delays a file at most one poll interval.
type Watcher struct {
	cfg   *config.Config
	store *store.Store
	kick  chan struct{}
}

// NewWatcher builds a watcher over the configured roots.
func NewWatcher(cfg *config.Config, st *store.Store) *Watcher {
	return &Watcher{
		cfg:   cfg,
		store: st,
		kick:  make(chan struct{}, 1),
	}
}

// Run scans until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WatcherWarn("fsnotify unavailable, polling only: %v", err)
	} else {
		defer fsw.Close()
		for _, root := range w.cfg.Watcher.Roots {
			if err := fsw.Add(root); err != nil {
				logging.WatcherWarn("Cannot watch %s: %v", root, err)
			}
		}
		go w.forwardEvents(ctx, fsw)
	}

	logging.Watcher("Watching %d roots every %s", len(w.cfg.Watcher.Roots), w.cfg.Watcher.PollInterval)
	for {
		if _, err := w.ScanOnce(ctx); err != nil {
			logging.WatcherWarn("Scan failed: %v", err)
		}
		timer := time.NewTimer(w.cfg.PollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-w.kick:
			timer.Stop()
			logging.WatcherDebug("Change event, scanning early")
		case <-timer.C:
		}
	}
}

// forwardEvents collapses fsnotify events into the kick channel.
func (w *Watcher) forwardEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-fsw.Events:
			if !ok {
				return
			}
			select {
			case w.kick <- struct{}{}:
			default:
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WatcherWarn("fsnotify error: %v", err)
		}
	}
}

// ScanOnce walks every root and enqueues ingest jobs for new or
// changed files. Returns the number of jobs enqueued.
func (w *Watcher) ScanOnce(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryWatcher, "ScanOnce")
	defer timer.StopWithThreshold(0)

	enqueued := 0
	for _, root := range w.cfg.Watcher.Roots {
		n, err := w.ScanPath(ctx, root)
		if err != nil {
			logging.WatcherWarn("Root %s: %v", root, err)
			continue
		}
		enqueued += n
	}
	if enqueued > 0 {
		logging.Watcher("Enqueued %d ingest jobs", enqueued)
	}
	return enqueued, nil
}

// ScanPath walks one root (or single file) and enqueues changed files.
func (w *Watcher) ScanPath(ctx context.Context, root string) (int, error) {
	enqueued := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.WatcherDebug("Skipping %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || w.ignoredDir(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		changed, err := w.visit(path)
		if err != nil {
			// One bad file never stops the scan.
			logging.WatcherWarn("File %s: %v", path, err)
			return nil
		}
		if changed {
			enqueued++
		}
		return nil
	})
	return enqueued, err
}

func (w *Watcher) ignoredDir(name string) bool {
	for _, ig := range w.cfg.Watcher.IgnoreDirs {
		if name == ig {
			return true
		}
	}
	return false
}

// visit enqueues an ingest job when the file is new or its
// (mtime_ns, size) pair moved since the last scan.
func (w *Watcher) visit(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	mtimeNS := info.ModTime().UnixNano()
	size := info.Size()

	state, err := w.store.GetFileState(path)
	if err == nil && state.MtimeNS == mtimeNS && state.Size == size {
		if err := w.store.TouchFileState(path); err != nil {
			logging.WatcherDebug("Touch %s: %v", path, err)
		}
		return false, nil
	}

	sha, err := hashFile(path)
	if err != nil {
		return false, err
	}
	if err := w.store.UpsertFileState(path, mtimeNS, size, sha); err != nil {
		return false, err
	}

	sourceID, err := w.store.UpsertSource("filesystem", "file://"+path)
	if err != nil {
		return false, err
	}
	mimeType := detectMime(path)
	blobID, err := w.store.UpsertBlob(sha, path, mimeType, size)
	if err != nil {
		return false, err
	}

	jobID, created, err := w.store.EnqueueJob(types.JobIngestBlob, map[string]any{
		"blob_id":    blobID,
		"source_id":  sourceID,
		"path":       path,
		"sha256":     sha,
		"mime":       mimeType,
		"size_bytes": size,
	})
	if err != nil {
		return false, err
	}
	if !created {
		logging.WatcherDebug("Job already queued for %s", path)
		return false, nil
	}
	logging.Watcher("Queued %s (job %s, %d bytes)", path, jobID, size)
	return true, nil
}

// hashFile computes a streaming SHA-256 so large files never load
// whole into memory.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// detectMime resolves by extension first, sniffing content otherwise.
func detectMime(path string) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		if i := strings.IndexByte(mt, ';'); i > 0 {
			mt = mt[:i]
		}
		return mt
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	mt := http.DetectContentType(buf[:n])
	if i := strings.IndexByte(mt, ';'); i > 0 {
		mt = mt[:i]
	}
	return mt
}
