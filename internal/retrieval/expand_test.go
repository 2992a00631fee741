package retrieval

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/graph"
	"engram/internal/store"
	"engram/internal/types"
)

func expandFixture(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	// seed --alpha-- m2 --beta-- m3
	alpha, at, ac, _ := graph.CanonicalEntity("alpha", "Topic")
	beta, bt, bc, _ := graph.CanonicalEntity("beta", "Topic")
	require.NoError(t, st.UpsertGraphNodes([]*types.GraphNode{
		{NodeID: alpha, NodeType: at, Props: map[string]any{"canonical": ac}},
		{NodeID: beta, NodeType: bt, Props: map[string]any{"canonical": bc}},
	}))
	require.NoError(t, st.UpsertGraphEdges([]*types.GraphEdge{
		{FromNodeID: types.MemoryNodeID("seed"), ToNodeID: alpha, EdgeType: types.EdgeMentions, Weight: 0.8},
		{FromNodeID: types.MemoryNodeID("m2"), ToNodeID: alpha, EdgeType: types.EdgeMentions, Weight: 0.8},
		{FromNodeID: types.MemoryNodeID("m2"), ToNodeID: beta, EdgeType: types.EdgeMentions, Weight: 0.8},
		{FromNodeID: types.MemoryNodeID("m3"), ToNodeID: beta, EdgeType: types.EdgeMentions, Weight: 0.8},
	}))
	return st
}

func TestExpandFromSeedsOneHop(t *testing.T) {
	st := expandFixture(t)

	hits, err := ExpandFromSeeds(st, []string{"seed"}, 1, 50)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hit, ok := hits["m2"]
	require.True(t, ok)
	assert.Equal(t, 1, hit.Hop)
	alpha, _, _, _ := graph.CanonicalEntity("alpha", "Topic")
	assert.Equal(t, []string{alpha}, hit.ViaEntityIDs)
}

func TestExpandFromSeedsTwoHops(t *testing.T) {
	st := expandFixture(t)

	hits, err := ExpandFromSeeds(st, []string{"seed"}, 2, 50)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	alpha, _, _, _ := graph.CanonicalEntity("alpha", "Topic")
	beta, _, _, _ := graph.CanonicalEntity("beta", "Topic")

	assert.Equal(t, 1, hits["m2"].Hop)
	assert.Equal(t, 2, hits["m3"].Hop)
	assert.Equal(t, []string{alpha, beta}, hits["m3"].ViaEntityIDs)
}

func TestExpandFromSeedsNeverReturnsSeeds(t *testing.T) {
	st := expandFixture(t)

	hits, err := ExpandFromSeeds(st, []string{"seed", "m2"}, 2, 50)
	require.NoError(t, err)
	_, hasSeed := hits["seed"]
	_, hasM2 := hits["m2"]
	assert.False(t, hasSeed)
	assert.False(t, hasM2)
	assert.Contains(t, hits, "m3")
}

func TestExpandFromSeedsRespectsCap(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "engram.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub, ht, hc, _ := graph.CanonicalEntity("hub", "Topic")
	require.NoError(t, st.UpsertGraphNode(&types.GraphNode{
		NodeID: hub, NodeType: ht, Props: map[string]any{"canonical": hc},
	}))
	edges := []*types.GraphEdge{
		{FromNodeID: types.MemoryNodeID("seed"), ToNodeID: hub, EdgeType: types.EdgeMentions, Weight: 0.5},
	}
	for i := 0; i < 20; i++ {
		edges = append(edges, &types.GraphEdge{
			FromNodeID: types.MemoryNodeID(string(rune('a' + i))),
			ToNodeID:   hub,
			EdgeType:   types.EdgeMentions,
			Weight:     0.5,
		})
	}
	require.NoError(t, st.UpsertGraphEdges(edges))

	hits, err := ExpandFromSeeds(st, []string{"seed"}, 1, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
}
