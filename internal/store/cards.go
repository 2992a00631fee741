package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"engram/internal/logging"
	"engram/internal/types"
)

// InsertMemoryCard persists a card and mirrors its summary into the
// full-text index. The index write is best-effort: a failure there never
// fails the card write. Summary/content caps are enforced on the way in.
func (s *Store) InsertMemoryCard(card *types.MemoryCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card.Summary, card.ContentText = types.EnforceCardLimits(card.Summary, card.ContentText)
	if card.CreatedAt == "" {
		card.CreatedAt = isoNow()
	}
	if card.CardType == "" {
		card.CardType = "note"
	}
	metaJSON := "{}"
	if card.Metadata != nil {
		if b, err := json.Marshal(card.Metadata); err == nil {
			metaJSON = string(b)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO memory_card (memory_id, card_type, summary, content_text, metadata_json, created_at, source_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		card.MemoryID, card.CardType, card.Summary, card.ContentText, metaJSON, card.CreatedAt, card.SourceTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory card: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO memory_card_fts (summary, memory_id) VALUES (?, ?)`,
		card.Summary, card.MemoryID,
	); err != nil {
		logging.StoreDebug("FTS index write failed for %s: %v", card.MemoryID, err)
	}

	logging.Store("Inserted memory card %s (%s, %d chars)", card.MemoryID, card.CardType, len(card.ContentText))
	return nil
}

// GetMemoryCard returns one card, or ErrNotFound.
func (s *Store) GetMemoryCard(memoryID string) (*types.MemoryCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMemoryCardLocked(memoryID)
}

func (s *Store) getMemoryCardLocked(memoryID string) (*types.MemoryCard, error) {
	var card types.MemoryCard
	var metaJSON string
	err := s.db.QueryRow(
		`SELECT memory_id, card_type, summary, content_text, metadata_json, created_at, source_time
		 FROM memory_card WHERE memory_id = ?`, memoryID,
	).Scan(&card.MemoryID, &card.CardType, &card.Summary, &card.ContentText, &metaJSON, &card.CreatedAt, &card.SourceTime)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query memory card: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &card.Metadata); err != nil {
		card.Metadata = map[string]any{}
	}
	return &card, nil
}

// GetMemoryCards returns the subset of the given ids that exist, keyed
// by memory id.
func (s *Store) GetMemoryCards(memoryIDs []string) (map[string]*types.MemoryCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*types.MemoryCard, len(memoryIDs))
	for _, id := range memoryIDs {
		card, err := s.getMemoryCardLocked(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = card
	}
	return out, nil
}

// FindCardByBlobID returns the id of the first card whose metadata
// references the blob, or ErrNotFound. This is the ingest idempotency
// check.
func (s *Store) FindCardByBlobID(blobID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRow(
		`SELECT memory_id FROM memory_card
		 WHERE json_extract(metadata_json, '$.blob_id') = ?
		 ORDER BY created_at ASC LIMIT 1`, blobID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query card by blob: %w", err)
	}
	return id, nil
}

// ListMemoryCards returns recent cards, newest first.
func (s *Store) ListMemoryCards(limit, offset int) ([]*types.MemoryCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT memory_id, card_type, summary, content_text, metadata_json, created_at, source_time
		 FROM memory_card ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory cards: %w", err)
	}
	defer rows.Close()

	var cards []*types.MemoryCard
	for rows.Next() {
		var card types.MemoryCard
		var metaJSON string
		if err := rows.Scan(&card.MemoryID, &card.CardType, &card.Summary, &card.ContentText,
			&metaJSON, &card.CreatedAt, &card.SourceTime); err != nil {
			return nil, fmt.Errorf("failed to scan memory card: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &card.Metadata); err != nil {
			card.Metadata = map[string]any{}
		}
		cards = append(cards, &card)
	}
	return cards, rows.Err()
}

// ListCardsSince returns cards created at or after the cutoff, newest
// first.
func (s *Store) ListCardsSince(cutoff string, limit int) ([]*types.MemoryCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT memory_id, card_type, summary, content_text, metadata_json, created_at, source_time
		 FROM memory_card WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent cards: %w", err)
	}
	defer rows.Close()

	var cards []*types.MemoryCard
	for rows.Next() {
		var card types.MemoryCard
		var metaJSON string
		if err := rows.Scan(&card.MemoryID, &card.CardType, &card.Summary, &card.ContentText,
			&metaJSON, &card.CreatedAt, &card.SourceTime); err != nil {
			return nil, fmt.Errorf("failed to scan memory card: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &card.Metadata); err != nil {
			card.Metadata = map[string]any{}
		}
		cards = append(cards, &card)
	}
	return cards, rows.Err()
}

// FTSHit is one full-text match over card summaries.
type FTSHit struct {
	MemoryID string
	Rank     float64
}

// SearchCardSummaries runs an FTS5 MATCH over card summaries with
// optional time-window and source-type filters applied in-store. The
// match string must already be sanitized by the caller.
func (s *Store) SearchCardSummaries(match string, limit int, timeFrom, timeTo string, sourceTypes []string) ([]FTSHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT f.memory_id, f.rank
		FROM memory_card_fts f
		JOIN memory_card c ON c.memory_id = f.memory_id
		WHERE memory_card_fts MATCH ?`
	args := []any{match}

	if timeFrom != "" {
		query += ` AND c.created_at >= ?`
		args = append(args, timeFrom)
	}
	if timeTo != "" {
		query += ` AND c.created_at <= ?`
		args = append(args, timeTo)
	}
	if len(sourceTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sourceTypes)), ",")
		query += ` AND json_extract(c.metadata_json, '$.source_type') IN (` + placeholders + `)`
		for _, st := range sourceTypes {
			args = append(args, st)
		}
	}
	query += ` ORDER BY f.rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search card summaries: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.MemoryID, &h.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan FTS hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// InsertEmbedding records a card-to-vector link.
func (s *Store) InsertEmbedding(e *types.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.EmbeddingID == "" {
		e.EmbeddingID = types.NewID()
	}
	_, err := s.db.Exec(
		`INSERT INTO embedding (embedding_id, memory_id, modality, vector_ref, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.EmbeddingID, e.MemoryID, e.Modality, e.VectorRef, isoNow(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// GetEmbeddings returns the embedding links of one card.
func (s *Store) GetEmbeddings(memoryID string) ([]*types.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT embedding_id, memory_id, modality, vector_ref FROM embedding WHERE memory_id = ?`,
		memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []*types.Embedding
	for rows.Next() {
		var e types.Embedding
		if err := rows.Scan(&e.EmbeddingID, &e.MemoryID, &e.Modality, &e.VectorRef); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
