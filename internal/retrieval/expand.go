package retrieval

import (
	"fmt"
	"strings"

	"engram/internal/store"
	"engram/internal/types"
)

// ExpandHit is a memory discovered through the knowledge graph.
type ExpandHit struct {
	Hop          int
	ViaEntityIDs []string
}

// ExpandFromSeeds walks memory -> entity -> memory from the seed cards.
// A first hop is one shared entity away; a second hop goes through two
// entities. Seeds themselves are never returned. maxHits bounds the
// total number of discovered memories.
func ExpandFromSeeds(st *store.Store, seedMemoryIDs []string, hops, maxHits int) (map[string]ExpandHit, error) {
	if len(seedMemoryIDs) == 0 || hops <= 0 {
		return nil, nil
	}
	if hops > 2 {
		hops = 2
	}
	if maxHits <= 0 {
		maxHits = 200
	}

	seedNodes := make([]string, 0, len(seedMemoryIDs))
	seen := map[string]bool{}
	for _, id := range seedMemoryIDs {
		seedNodes = append(seedNodes, types.MemoryNodeID(id))
		seen[id] = true
	}

	// Entities adjacent to the seeds, each remembering how it was reached.
	entPaths, err := entityNeighbors(st, seedNodes, nil, maxHits*4)
	if err != nil {
		return nil, err
	}
	if len(entPaths) == 0 {
		return nil, nil
	}

	hits := map[string]ExpandHit{}
	hop1Nodes, err := collectMemories(st, entPaths, seen, hits, 1, maxHits)
	if err != nil {
		return nil, err
	}

	if hops >= 2 && len(hits) < maxHits && len(hop1Nodes) > 0 {
		memPaths := map[string][]string{}
		for memID, hit := range hits {
			memPaths[types.MemoryNodeID(memID)] = hit.ViaEntityIDs
		}
		entPaths2, err := entityNeighbors(st, hop1Nodes, memPaths, maxHits*4)
		if err != nil {
			return nil, err
		}
		// Entities already reached on the first hop stay first-hop.
		for id := range entPaths {
			delete(entPaths2, id)
		}
		if _, err := collectMemories(st, entPaths2, seen, hits, 2, maxHits); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

// entityNeighbors finds entity nodes adjacent to memNodes. basePaths
// maps a memory node to the entity path that reached it; nil means the
// memories are seeds with empty paths.
func entityNeighbors(st *store.Store, memNodes []string, basePaths map[string][]string, limit int) (map[string][]string, error) {
	edges, err := st.EdgesTouching(memNodes, "both", nil, "", "", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity edges: %w", err)
	}

	memSet := map[string]bool{}
	for _, n := range memNodes {
		memSet[n] = true
	}

	paths := map[string][]string{}
	for _, e := range edges {
		memNode, entNode := e.FromNodeID, e.ToNodeID
		if !strings.HasPrefix(entNode, "ent:") {
			memNode, entNode = entNode, memNode
		}
		if !strings.HasPrefix(entNode, "ent:") || !memSet[memNode] {
			continue
		}
		if _, ok := paths[entNode]; ok {
			continue
		}
		base := basePaths[memNode]
		path := make([]string, 0, len(base)+1)
		path = append(path, base...)
		path = append(path, entNode)
		paths[entNode] = path
	}
	return paths, nil
}

// collectMemories records the memories linked to the given entities as
// hits at the given hop, returning their node ids for the next hop.
func collectMemories(st *store.Store, entPaths map[string][]string, seen map[string]bool, hits map[string]ExpandHit, hop, maxHits int) ([]string, error) {
	entIDs := make([]string, 0, len(entPaths))
	for id := range entPaths {
		entIDs = append(entIDs, id)
	}
	neighbors, err := st.MemoriesLinkedToEntities(entIDs, maxHits*2)
	if err != nil {
		return nil, fmt.Errorf("failed to expand entities: %w", err)
	}

	var nodes []string
	for _, n := range neighbors {
		if len(hits) >= maxHits {
			break
		}
		memID := strings.TrimPrefix(n.MemoryNodeID, "mem:")
		if seen[memID] {
			continue
		}
		seen[memID] = true
		hits[memID] = ExpandHit{Hop: hop, ViaEntityIDs: entPaths[n.EntityNodeID]}
		nodes = append(nodes, n.MemoryNodeID)
	}
	return nodes, nil
}
