package store

import (
	"database/sql"
	"fmt"
	"time"

	"engram/internal/logging"
	"engram/internal/types"
)

// GetFileState returns the watcher's record for a path, or ErrNotFound.
func (s *Store) GetFileState(path string) (*types.FileState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fs types.FileState
	var lastSeen string
	err := s.db.QueryRow(
		`SELECT path, mtime_ns, size_bytes, sha256, last_seen FROM file_state WHERE path = ?`,
		path,
	).Scan(&fs.Path, &fs.MtimeNS, &fs.Size, &fs.SHA256, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file state: %w", err)
	}
	fs.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	return &fs, nil
}

// UpsertFileState records the latest observed (mtime_ns, size, sha256)
// for a path.
func (s *Store) UpsertFileState(path string, mtimeNS, size int64, sha256 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO file_state (path, mtime_ns, size_bytes, sha256, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   mtime_ns = excluded.mtime_ns,
		   size_bytes = excluded.size_bytes,
		   sha256 = excluded.sha256,
		   last_seen = excluded.last_seen`,
		path, mtimeNS, size, sha256, isoNow(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert file state: %w", err)
	}
	return nil
}

// TouchFileState refreshes last_seen without changing the content fields.
func (s *Store) TouchFileState(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE file_state SET last_seen = ? WHERE path = ?`, isoNow(), path)
	if err != nil {
		return fmt.Errorf("failed to touch file state: %w", err)
	}
	return nil
}

// UpsertSource deduplicates sources by URI and returns the source id.
func (s *Store) UpsertSource(sourceType, uri string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.db.QueryRow(`SELECT source_id FROM source WHERE uri = ?`, uri).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to query source: %w", err)
	}

	id = types.NewID()
	_, err = s.db.Exec(
		`INSERT INTO source (source_id, source_type, uri, created_at) VALUES (?, ?, ?, ?)`,
		id, sourceType, uri, isoNow(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert source: %w", err)
	}
	logging.StoreDebug("Created source %s (%s) for %s", id, sourceType, uri)
	return id, nil
}

// GetSource returns one source row.
func (s *Store) GetSource(sourceID string) (*types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var src types.Source
	err := s.db.QueryRow(
		`SELECT source_id, source_type, uri FROM source WHERE source_id = ?`, sourceID,
	).Scan(&src.SourceID, &src.SourceType, &src.URI)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return &src, nil
}

// UpsertBlob deduplicates blobs by (sha256, path) and returns the blob id.
func (s *Store) UpsertBlob(sha256, path, mime string, size int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.db.QueryRow(
		`SELECT blob_id FROM blob WHERE sha256 = ? AND path = ?`, sha256, path,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to query blob: %w", err)
	}

	id = types.NewID()
	_, err = s.db.Exec(
		`INSERT INTO blob (blob_id, sha256, path, mime, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, sha256, path, mime, size, isoNow(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert blob: %w", err)
	}
	logging.StoreDebug("Created blob %s for %s (%d bytes)", id, path, size)
	return id, nil
}

// GetBlob returns one blob row.
func (s *Store) GetBlob(blobID string) (*types.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b types.Blob
	err := s.db.QueryRow(
		`SELECT blob_id, sha256, path, mime, size_bytes FROM blob WHERE blob_id = ?`, blobID,
	).Scan(&b.BlobID, &b.SHA256, &b.Path, &b.Mime, &b.Size)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query blob: %w", err)
	}
	return &b, nil
}
