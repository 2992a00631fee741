package store

import (
	"fmt"
	"time"

	"engram/internal/types"
)

// InsertTurn persists one conversation turn.
func (s *Store) InsertTurn(turn *types.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.TurnID == "" {
		turn.TurnID = types.NewID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO conversation_turn (turn_id, user_text, assistant_text, verdict, trace_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.UserText, turn.AssistantText, turn.Verdict, turn.TraceID,
		turn.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// InsertCitation persists one chat citation.
func (s *Store) InsertCitation(c *types.ChatCitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CitationID == "" {
		c.CitationID = types.NewID()
	}
	_, err := s.db.Exec(
		`INSERT INTO chat_citation (citation_id, turn_id, memory_id, quote, span_start, span_end)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.CitationID, c.TurnID, c.MemoryID, c.Quote, c.SpanStart, c.SpanEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to insert citation: %w", err)
	}
	return nil
}

// ListTurns returns recent turns, newest first.
func (s *Store) ListTurns(limit, offset int) ([]*types.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT turn_id, user_text, assistant_text, verdict, trace_id, created_at
		 FROM conversation_turn ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []*types.ConversationTurn
	for rows.Next() {
		var t types.ConversationTurn
		var createdAt string
		if err := rows.Scan(&t.TurnID, &t.UserText, &t.AssistantText, &t.Verdict, &t.TraceID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

// TurnCitations returns the citations of one turn.
func (s *Store) TurnCitations(turnID string) ([]*types.ChatCitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT citation_id, turn_id, memory_id, quote, span_start, span_end
		 FROM chat_citation WHERE turn_id = ?`, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query citations: %w", err)
	}
	defer rows.Close()

	var out []*types.ChatCitation
	for rows.Next() {
		var c types.ChatCitation
		if err := rows.Scan(&c.CitationID, &c.TurnID, &c.MemoryID, &c.Quote, &c.SpanStart, &c.SpanEnd); err != nil {
			return nil, fmt.Errorf("failed to scan citation: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountTurnCitations returns the citation count per turn id.
func (s *Store) CountTurnCitations(turnIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(turnIDs))
	for _, id := range turnIDs {
		cits, err := s.TurnCitations(id)
		if err != nil {
			return nil, err
		}
		counts[id] = len(cits)
	}
	return counts, nil
}
