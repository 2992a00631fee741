package graph

import (
	"fmt"
	"sort"

	"engram/internal/logging"
	"engram/internal/types"
)

// typePriority orders entity types for picking a compaction primary.
var typePriority = map[string]int{
	types.NodePerson:     10,
	types.NodeOrg:        9,
	types.NodePlace:      8,
	types.NodeProject:    7,
	types.NodeTechnology: 6,
	types.NodeComponent:  5,
	types.NodeTopic:      4,
	types.NodeOther:      1,
}

// CompactResult summarizes one compaction pass.
type CompactResult struct {
	Groups         int `json:"groups"`
	MergedNodes    int `json:"merged_nodes"`
	RepointedEdges int `json:"repointed_edges"`
}

// Compact merges entity nodes that share a canonical string across
// types: the highest-priority node becomes the primary, every edge of
// the duplicates is repointed onto it, and the duplicates are deleted.
func (s *Service) Compact() (*CompactResult, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "Compact")
	defer timer.StopWithInfo()

	nodes, err := s.store.EntityNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to load entity nodes: %w", err)
	}

	groups := map[string][]*types.GraphNode{}
	for _, n := range nodes {
		canonical, _ := n.Props["canonical"].(string)
		if canonical == "" {
			continue
		}
		groups[canonical] = append(groups[canonical], n)
	}

	res := &CompactResult{}
	// Deterministic group order keeps repeated runs reproducible.
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, canonical := range keys {
		group := groups[canonical]
		if len(group) < 2 {
			continue
		}
		res.Groups++

		primary := pickPrimary(group)
		for _, dup := range group {
			if dup.NodeID == primary.NodeID {
				continue
			}
			repointed, err := s.repointEdges(dup.NodeID, primary.NodeID)
			if err != nil {
				return nil, err
			}
			res.RepointedEdges += repointed

			// Fold any properties the primary is missing.
			changed := false
			for k, v := range dup.Props {
				if _, exists := primary.Props[k]; !exists {
					if primary.Props == nil {
						primary.Props = map[string]any{}
					}
					primary.Props[k] = v
					changed = true
				}
			}
			if changed {
				if err := s.store.UpsertGraphNode(primary); err != nil {
					return nil, err
				}
			}

			if err := s.store.DeleteGraphNode(dup.NodeID); err != nil {
				return nil, err
			}
			res.MergedNodes++
			logging.Graph("Compacted %s into %s (canonical %q)", dup.NodeID, primary.NodeID, canonical)
		}
	}
	return res, nil
}

// pickPrimary chooses by type priority, breaking ties on confidence.
func pickPrimary(group []*types.GraphNode) *types.GraphNode {
	best := group[0]
	for _, n := range group[1:] {
		bp, np := typePriority[best.NodeType], typePriority[n.NodeType]
		if np > bp {
			best = n
			continue
		}
		if np == bp && confidence(n) > confidence(best) {
			best = n
		}
	}
	return best
}

func confidence(n *types.GraphNode) float64 {
	if c, ok := n.Props["confidence"].(float64); ok {
		return c
	}
	return 0
}

// repointEdges rewrites every edge touching oldID onto newID, deriving
// fresh deterministic edge ids; self-loops produced by the merge are
// dropped.
func (s *Service) repointEdges(oldID, newID string) (int, error) {
	edges, err := s.store.EdgesTouching([]string{oldID}, "both", nil, "", "", 10000)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range edges {
		if err := s.store.DeleteGraphEdge(e.EdgeID); err != nil {
			return count, err
		}
		from, to := e.FromNodeID, e.ToNodeID
		if from == oldID {
			from = newID
		}
		if to == oldID {
			to = newID
		}
		if from == to {
			continue
		}
		moved := &types.GraphEdge{
			FromNodeID: from,
			ToNodeID:   to,
			EdgeType:   e.EdgeType,
			Weight:     e.Weight,
			ValidFrom:  e.ValidFrom,
			ValidTo:    e.ValidTo,
			Provenance: e.Provenance,
		}
		if err := s.store.UpsertGraphEdge(moved); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
