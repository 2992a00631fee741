package store

import "fmt"

// Stats is the aggregated view behind the status command.
type Stats struct {
	MemoryCards int            `json:"memory_cards"`
	GraphNodes  int            `json:"graph_nodes"`
	GraphEdges  int            `json:"graph_edges"`
	Blobs       int            `json:"blobs"`
	Sources     int            `json:"sources"`
	Embeddings  int            `json:"embeddings"`
	Traces      int            `json:"traces"`
	Turns       int            `json:"turns"`
	Jobs        map[string]int `json:"jobs"`
}

// GetStats aggregates row counts across the store.
func (s *Store) GetStats() (*Stats, error) {
	s.mu.RLock()
	counts := map[string]*int{}
	stats := &Stats{}
	counts["memory_card"] = &stats.MemoryCards
	counts["graph_node"] = &stats.GraphNodes
	counts["graph_edge"] = &stats.GraphEdges
	counts["blob"] = &stats.Blobs
	counts["source"] = &stats.Sources
	counts["embedding"] = &stats.Embeddings
	counts["exec_trace"] = &stats.Traces
	counts["conversation_turn"] = &stats.Turns
	for table, dst := range counts {
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(dst); err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}
	s.mu.RUnlock()

	jobs, err := s.CountJobs()
	if err != nil {
		return nil, err
	}
	stats.Jobs = jobs
	return stats, nil
}
