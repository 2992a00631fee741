package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"engram/internal/logging"
	"engram/internal/types"
)

// BeginDispatch persists the tool-call and exec-node records for one
// dispatch in the running state, atomically.
func (s *Store) BeginDispatch(call *types.ToolCall, node *types.ExecNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputsJSON := "{}"
	if call.Inputs != nil {
		if b, err := json.Marshal(call.Inputs); err == nil {
			inputsJSON = string(b)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin dispatch transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO tool_call (call_id, tool_name, ts, inputs_json, outputs_json, status)
		 VALUES (?, ?, ?, ?, '{}', 'running')`,
		call.CallID, call.ToolName, call.Timestamp.UTC().Format(time.RFC3339), inputsJSON,
	); err != nil {
		return fmt.Errorf("failed to insert tool call: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO exec_node (exec_node_id, call_id, trace_id, tool_name, state, attempt, timeout_ms, started_at)
		 VALUES (?, ?, ?, ?, 'running', ?, ?, ?)`,
		node.ExecNodeID, call.CallID, node.TraceID, call.ToolName, node.Attempt, node.TimeoutMS,
		node.StartedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to insert exec node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dispatch begin: %w", err)
	}
	return nil
}

// FinishDispatch updates the tool-call and exec-node records with the
// final outputs and state, atomically.
func (s *Store) FinishDispatch(callID, execNodeID string, outputs map[string]any, status string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outputsJSON := "{}"
	if outputs != nil {
		if b, err := json.Marshal(outputs); err == nil {
			outputsJSON = string(b)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin finish transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE tool_call SET outputs_json = ?, status = ? WHERE call_id = ?`,
		outputsJSON, status, callID,
	); err != nil {
		return fmt.Errorf("failed to update tool call: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE exec_node SET state = ?, finished_at = ? WHERE exec_node_id = ?`,
		status, finishedAt.UTC().Format(time.RFC3339), execNodeID,
	); err != nil {
		return fmt.Errorf("failed to update exec node: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dispatch finish: %w", err)
	}
	return nil
}

// StampExecNodeTrace sets the trace id on a persisted exec node.
func (s *Store) StampExecNodeTrace(execNodeID, traceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`UPDATE exec_node SET trace_id = ? WHERE exec_node_id = ?`, traceID, execNodeID,
	); err != nil {
		return fmt.Errorf("failed to stamp exec node trace: %w", err)
	}
	return nil
}

// InsertExecEdge links two exec nodes; duplicate links are ignored.
func (s *Store) InsertExecEdge(edge *types.ExecEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edge.Condition == "" {
		edge.Condition = "sequential"
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO exec_edge (from_exec_node_id, to_exec_node_id, condition, trace_id)
		 VALUES (?, ?, ?, ?)`,
		edge.FromExecNodeID, edge.ToExecNodeID, edge.Condition, edge.TraceID,
	); err != nil {
		return fmt.Errorf("failed to insert exec edge: %w", err)
	}
	return nil
}

// OpenTrace persists a new execution trace in the running state.
func (s *Store) OpenTrace(traceID string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON := "{}"
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metaJSON = string(b)
		}
	}
	if _, err := s.db.Exec(
		`INSERT INTO exec_trace (trace_id, status, metadata_json, started_at)
		 VALUES (?, 'running', ?, ?)`,
		traceID, metaJSON, isoNow(),
	); err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	logging.StoreDebug("Opened trace %s", traceID)
	return nil
}

// CloseTrace moves a running trace to a terminal status. Terminal
// states are written once: a trace already closed stays closed.
func (s *Store) CloseTrace(traceID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`UPDATE exec_trace SET status = ?, finished_at = ? WHERE trace_id = ? AND status = 'running'`,
		status, isoNow(), traceID,
	); err != nil {
		return fmt.Errorf("failed to close trace: %w", err)
	}
	logging.StoreDebug("Closed trace %s with status %s", traceID, status)
	return nil
}

// GetTrace returns one trace row, or ErrNotFound.
func (s *Store) GetTrace(traceID string) (*types.ExecTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tr types.ExecTrace
	var metaJSON, startedAt, finishedAt string
	err := s.db.QueryRow(
		`SELECT trace_id, status, metadata_json, started_at, finished_at FROM exec_trace WHERE trace_id = ?`,
		traceID,
	).Scan(&tr.TraceID, &tr.Status, &metaJSON, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trace: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &tr.Metadata); err != nil {
		tr.Metadata = map[string]any{}
	}
	tr.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt != "" {
		tr.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
	}
	return &tr, nil
}

// TraceNodes returns the exec nodes of a trace in start order.
func (s *Store) TraceNodes(traceID string) ([]*types.ExecNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT exec_node_id, call_id, trace_id, tool_name, state, attempt, timeout_ms, started_at, finished_at
		 FROM exec_node WHERE trace_id = ? ORDER BY started_at ASC, exec_node_id ASC`, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*types.ExecNode
	for rows.Next() {
		var n types.ExecNode
		var startedAt, finishedAt string
		if err := rows.Scan(&n.ExecNodeID, &n.CallID, &n.TraceID, &n.ToolName, &n.State,
			&n.Attempt, &n.TimeoutMS, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trace node: %w", err)
		}
		n.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt != "" {
			n.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// TraceEdges returns the exec edges of a trace.
func (s *Store) TraceEdges(traceID string) ([]*types.ExecEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT from_exec_node_id, to_exec_node_id, condition, trace_id
		 FROM exec_edge WHERE trace_id = ?`, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.ExecEdge
	for rows.Next() {
		var e types.ExecEdge
		if err := rows.Scan(&e.FromExecNodeID, &e.ToExecNodeID, &e.Condition, &e.TraceID); err != nil {
			return nil, fmt.Errorf("failed to scan trace edge: %w", err)
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// GetToolCall returns one persisted tool call.
func (s *Store) GetToolCall(callID string) (*types.ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var call types.ToolCall
	var ts, inputsJSON, outputsJSON string
	err := s.db.QueryRow(
		`SELECT call_id, tool_name, ts, inputs_json, outputs_json, status FROM tool_call WHERE call_id = ?`,
		callID,
	).Scan(&call.CallID, &call.ToolName, &ts, &inputsJSON, &outputsJSON, &call.Status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tool call: %w", err)
	}
	call.Timestamp, _ = time.Parse(time.RFC3339, ts)
	if err := json.Unmarshal([]byte(inputsJSON), &call.Inputs); err != nil {
		call.Inputs = map[string]any{}
	}
	if err := json.Unmarshal([]byte(outputsJSON), &call.Outputs); err != nil {
		call.Outputs = map[string]any{}
	}
	return &call, nil
}
