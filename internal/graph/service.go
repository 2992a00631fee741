package graph

import (
	"fmt"

	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/types"
)

// Service is the property-graph layer over the store.
type Service struct {
	store *store.Store
}

// New wires the graph service to the store.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// UpsertNodes inserts or replaces nodes by id.
func (s *Service) UpsertNodes(nodes []*types.GraphNode) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := s.store.UpsertGraphNodes(nodes); err != nil {
		return fmt.Errorf("failed to upsert nodes: %w", err)
	}
	logging.GraphDebug("Upserted %d nodes", len(nodes))
	return nil
}

// UpsertEdges inserts or replaces edges by their deterministic ids.
func (s *Service) UpsertEdges(edges []*types.GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	if err := s.store.UpsertGraphEdges(edges); err != nil {
		return fmt.Errorf("failed to upsert edges: %w", err)
	}
	logging.GraphDebug("Upserted %d edges", len(edges))
	return nil
}

// NeighborsResult is the one-hop view around a node.
type NeighborsResult struct {
	Node      *types.GraphNode   `json:"node"`
	Neighbors []*types.GraphNode `json:"neighbors"`
	Edges     []*types.GraphEdge `json:"edges"`
}

// Neighbors returns the node, its connected nodes, and the edges that
// join them.
func (s *Service) Neighbors(nodeID, direction string, edgeTypes []string, validFrom, validTo string, limit int) (*NeighborsResult, error) {
	node, err := s.store.GetGraphNode(nodeID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}

	edges, err := s.store.EdgesTouching([]string{nodeID}, direction, edgeTypes, validFrom, validTo, limit)
	if err != nil {
		return nil, err
	}

	neighborIDs := make([]string, 0, len(edges))
	seen := map[string]bool{nodeID: true}
	for _, e := range edges {
		for _, id := range []string{e.FromNodeID, e.ToNodeID} {
			if !seen[id] {
				seen[id] = true
				neighborIDs = append(neighborIDs, id)
			}
		}
	}
	nodeMap, err := s.store.GetGraphNodes(neighborIDs)
	if err != nil {
		return nil, err
	}

	res := &NeighborsResult{Node: node, Edges: edges}
	for _, id := range neighborIDs {
		if n, ok := nodeMap[id]; ok {
			res.Neighbors = append(res.Neighbors, n)
		}
	}
	return res, nil
}

// Path records how a node was first reached during expansion.
type Path struct {
	ViaEdgeIDs []string `json:"via_edge_ids"`
}

// ExpandResult is a bounded breadth-first traversal result.
type ExpandResult struct {
	Nodes map[string]*types.GraphNode `json:"nodes"`
	Edges []*types.GraphEdge          `json:"edges"`
	Paths map[string]Path             `json:"paths"`
}

// Expand walks outward from the seed nodes for at most hops levels,
// stopping when either cap is reached. The first path to each
// discovered node wins; ties break by edge encounter order.
func (s *Service) Expand(seeds []string, hops int, direction string, edgeTypes []string, validFrom, validTo string, maxNodes, maxEdges int) (*ExpandResult, error) {
	if hops < 1 {
		hops = 1
	}
	if hops > 2 {
		hops = 2
	}
	if maxNodes <= 0 {
		maxNodes = 50
	}
	if maxEdges <= 0 {
		maxEdges = 100
	}

	res := &ExpandResult{
		Nodes: map[string]*types.GraphNode{},
		Paths: map[string]Path{},
	}

	visited := map[string]bool{}
	frontier := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		frontier = append(frontier, seed)
		if len(visited) >= maxNodes {
			break
		}
	}

	seenEdges := map[string]bool{}
	capped := false
	for hop := 0; hop < hops && len(frontier) > 0 && !capped; hop++ {
		edges, err := s.store.EdgesTouching(frontier, direction, edgeTypes, validFrom, validTo, maxEdges*2)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, e := range edges {
			if seenEdges[e.EdgeID] {
				continue
			}
			if len(res.Edges) >= maxEdges {
				capped = true
				break
			}

			// Admit the edge only if every new endpoint fits under the
			// node cap, so no returned edge dangles outside Nodes.
			var fresh []string
			for _, endpoint := range []string{e.FromNodeID, e.ToNodeID} {
				if !visited[endpoint] {
					fresh = append(fresh, endpoint)
				}
			}
			if len(visited)+len(fresh) > maxNodes {
				capped = true
				continue
			}

			seenEdges[e.EdgeID] = true
			res.Edges = append(res.Edges, e)

			for _, endpoint := range fresh {
				visited[endpoint] = true
				next = append(next, endpoint)

				// First path to this node: the parent's path plus this edge.
				var parent string
				if endpoint == e.FromNodeID {
					parent = e.ToNodeID
				} else {
					parent = e.FromNodeID
				}
				via := append(append([]string{}, res.Paths[parent].ViaEdgeIDs...), e.EdgeID)
				res.Paths[endpoint] = Path{ViaEdgeIDs: via}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	nodeMap, err := s.store.GetGraphNodes(ids)
	if err != nil {
		return nil, err
	}
	for id, node := range nodeMap {
		res.Nodes[id] = node
	}
	logging.GraphDebug("Expanded %d seeds to %d nodes, %d edges", len(seeds), len(visited), len(res.Edges))
	return res, nil
}
