package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"engram/internal/types"
)

// UpsertGraphNode inserts or replaces a node by id; node_type and
// properties are overwritten from the incoming record.
func (s *Store) UpsertGraphNode(node *types.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertGraphNodeLocked(node)
}

func (s *Store) upsertGraphNodeLocked(node *types.GraphNode) error {
	propsJSON := "{}"
	if node.Props != nil {
		if b, err := json.Marshal(node.Props); err == nil {
			propsJSON = string(b)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO graph_node (node_id, node_type, props_json, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET
		   node_type = excluded.node_type,
		   props_json = excluded.props_json`,
		node.NodeID, node.NodeType, propsJSON, isoNow(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert graph node: %w", err)
	}
	return nil
}

// UpsertGraphNodes upserts a batch of nodes.
func (s *Store) UpsertGraphNodes(nodes []*types.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		if err := s.upsertGraphNodeLocked(n); err != nil {
			return err
		}
	}
	return nil
}

// UpsertGraphEdge inserts or replaces an edge by its deterministic id.
func (s *Store) UpsertGraphEdge(edge *types.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertGraphEdgeLocked(edge)
}

func (s *Store) upsertGraphEdgeLocked(edge *types.GraphEdge) error {
	if edge.EdgeID == "" {
		edge.EdgeID = types.EdgeID(edge.FromNodeID, edge.EdgeType, edge.ToNodeID, edge.ValidFrom, edge.ValidTo)
	}
	provJSON := "{}"
	if edge.Provenance != nil {
		if b, err := json.Marshal(edge.Provenance); err == nil {
			provJSON = string(b)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO graph_edge (edge_id, from_node_id, to_node_id, edge_type, weight, valid_from, valid_to, provenance_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(edge_id) DO UPDATE SET
		   weight = excluded.weight,
		   provenance_json = excluded.provenance_json`,
		edge.EdgeID, edge.FromNodeID, edge.ToNodeID, edge.EdgeType, edge.Weight,
		edge.ValidFrom, edge.ValidTo, provJSON, isoNow(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert graph edge: %w", err)
	}
	return nil
}

// UpsertGraphEdges upserts a batch of edges.
func (s *Store) UpsertGraphEdges(edges []*types.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		if err := s.upsertGraphEdgeLocked(e); err != nil {
			return err
		}
	}
	return nil
}

// GetGraphNode returns one node, or ErrNotFound.
func (s *Store) GetGraphNode(nodeID string) (*types.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var node types.GraphNode
	var propsJSON string
	err := s.db.QueryRow(
		`SELECT node_id, node_type, props_json, created_at FROM graph_node WHERE node_id = ?`,
		nodeID,
	).Scan(&node.NodeID, &node.NodeType, &propsJSON, &node.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query graph node: %w", err)
	}
	if err := json.Unmarshal([]byte(propsJSON), &node.Props); err != nil {
		node.Props = map[string]any{}
	}
	return &node, nil
}

// GetGraphNodes returns the subset of the given ids that exist.
func (s *Store) GetGraphNodes(nodeIDs []string) (map[string]*types.GraphNode, error) {
	out := make(map[string]*types.GraphNode, len(nodeIDs))
	for _, id := range nodeIDs {
		node, err := s.GetGraphNode(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = node
	}
	return out, nil
}

// EdgesTouching returns edges incident to any of the given node ids,
// filtered by direction ("out", "in", "both"), edge types, and an
// optional validity window. Encounter order is deterministic
// (created_at, edge_id).
func (s *Store) EdgesTouching(nodeIDs []string, direction string, edgeTypes []string, validFrom, validTo string, limit int) ([]*types.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(nodeIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(nodeIDs)), ",")
	var cond string
	args := []any{}
	switch direction {
	case "out":
		cond = `from_node_id IN (` + placeholders + `)`
		for _, id := range nodeIDs {
			args = append(args, id)
		}
	case "in":
		cond = `to_node_id IN (` + placeholders + `)`
		for _, id := range nodeIDs {
			args = append(args, id)
		}
	default: // both
		cond = `(from_node_id IN (` + placeholders + `) OR to_node_id IN (` + placeholders + `))`
		for i := 0; i < 2; i++ {
			for _, id := range nodeIDs {
				args = append(args, id)
			}
		}
	}

	query := `SELECT edge_id, from_node_id, to_node_id, edge_type, weight, valid_from, valid_to, provenance_json
		FROM graph_edge WHERE ` + cond
	if len(edgeTypes) > 0 {
		tp := strings.TrimSuffix(strings.Repeat("?,", len(edgeTypes)), ",")
		query += ` AND edge_type IN (` + tp + `)`
		for _, et := range edgeTypes {
			args = append(args, et)
		}
	}
	if validFrom != "" {
		query += ` AND (valid_to = '' OR valid_to >= ?)`
		args = append(args, validFrom)
	}
	if validTo != "" {
		query += ` AND (valid_from = '' OR valid_from <= ?)`
		args = append(args, validTo)
	}
	query += ` ORDER BY created_at ASC, edge_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.GraphEdge
	for rows.Next() {
		var e types.GraphEdge
		var provJSON string
		if err := rows.Scan(&e.EdgeID, &e.FromNodeID, &e.ToNodeID, &e.EdgeType, &e.Weight,
			&e.ValidFrom, &e.ValidTo, &provJSON); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if err := json.Unmarshal([]byte(provJSON), &e.Provenance); err != nil {
			e.Provenance = map[string]any{}
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// EntityNodes returns all ent: nodes, for compaction grouping.
func (s *Store) EntityNodes() ([]*types.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT node_id, node_type, props_json, created_at FROM graph_node WHERE node_id LIKE 'ent:%'`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*types.GraphNode
	for rows.Next() {
		var node types.GraphNode
		var propsJSON string
		if err := rows.Scan(&node.NodeID, &node.NodeType, &propsJSON, &node.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity node: %w", err)
		}
		if err := json.Unmarshal([]byte(propsJSON), &node.Props); err != nil {
			node.Props = map[string]any{}
		}
		nodes = append(nodes, &node)
	}
	return nodes, rows.Err()
}

// EntityActivity is an entity's recent mention volume, for the digest.
type EntityActivity struct {
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
}

// RecentEntityActivity returns entity nodes created at or after the
// cutoff with at least minCount touching edges, busiest first.
func (s *Store) RecentEntityActivity(cutoff string, minCount, limit int) ([]EntityActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if minCount <= 0 {
		minCount = 2
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(
		`SELECT gn.node_id, gn.node_type,
		        COALESCE(json_extract(gn.props_json, '$.canonical'),
		                 json_extract(gn.props_json, '$.name'),
		                 gn.node_id),
		        COUNT(ge.edge_id)
		 FROM graph_node gn
		 JOIN graph_edge ge ON ge.from_node_id = gn.node_id OR ge.to_node_id = gn.node_id
		 WHERE gn.node_type != ? AND gn.created_at >= ?
		 GROUP BY gn.node_id
		 HAVING COUNT(ge.edge_id) >= ?
		 ORDER BY COUNT(ge.edge_id) DESC, gn.node_id
		 LIMIT ?`,
		types.NodeMemoryCard, cutoff, minCount, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity activity: %w", err)
	}
	defer rows.Close()

	var out []EntityActivity
	for rows.Next() {
		var ea EntityActivity
		if err := rows.Scan(&ea.NodeID, &ea.NodeType, &ea.Label, &ea.Count); err != nil {
			return nil, fmt.Errorf("failed to scan entity activity: %w", err)
		}
		out = append(out, ea)
	}
	return out, rows.Err()
}

// DeleteGraphEdge removes one edge.
func (s *Store) DeleteGraphEdge(edgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM graph_edge WHERE edge_id = ?`, edgeID); err != nil {
		return fmt.Errorf("failed to delete graph edge: %w", err)
	}
	return nil
}

// DeleteGraphNode removes one node.
func (s *Store) DeleteGraphNode(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM graph_node WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("failed to delete graph node: %w", err)
	}
	return nil
}

// CountGraph returns node and edge counts.
func (s *Store) CountGraph() (nodes, edges int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRow(`SELECT COUNT(*) FROM graph_node`).Scan(&nodes); err != nil {
		return 0, 0, fmt.Errorf("failed to count graph nodes: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM graph_edge`).Scan(&edges); err != nil {
		return 0, 0, fmt.Errorf("failed to count graph edges: %w", err)
	}
	return nodes, edges, nil
}

// MemoryNeighborsOfEntities runs the two-hop mem → ent → mem expansion
// in a single query: given entity node ids, return the memory node ids
// reachable through any edge, paired with the entity that linked them.
type MemoryNeighbor struct {
	MemoryNodeID string
	EntityNodeID string
	EdgeID       string
}

// MemoriesLinkedToEntities returns memory nodes adjacent to the given
// entity nodes in either direction.
func (s *Store) MemoriesLinkedToEntities(entityIDs []string, limit int) ([]MemoryNeighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(entityIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entityIDs)), ",")
	query := `
		SELECT from_node_id AS mem_id, to_node_id AS ent_id, edge_id
		FROM graph_edge
		WHERE to_node_id IN (` + placeholders + `) AND from_node_id LIKE 'mem:%'
		UNION
		SELECT to_node_id AS mem_id, from_node_id AS ent_id, edge_id
		FROM graph_edge
		WHERE from_node_id IN (` + placeholders + `) AND to_node_id LIKE 'mem:%'
		LIMIT ?`
	args := make([]any, 0, 2*len(entityIDs)+1)
	for i := 0; i < 2; i++ {
		for _, id := range entityIDs {
			args = append(args, id)
		}
	}
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory neighbors: %w", err)
	}
	defer rows.Close()

	var out []MemoryNeighbor
	for rows.Next() {
		var n MemoryNeighbor
		if err := rows.Scan(&n.MemoryNodeID, &n.EntityNodeID, &n.EdgeID); err != nil {
			return nil, fmt.Errorf("failed to scan memory neighbor: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
