package tools

import (
	"context"

	"engram/internal/graph"
	"engram/internal/tool"
	"engram/internal/types"
)

// graphBuilderMaxEdges bounds edges proposed per memory card.
const graphBuilderMaxEdges = 30

type graphBuilderTool struct{}

func (t *graphBuilderTool) Name() string    { return "graph_builder" }
func (t *graphBuilderTool) Version() string { return "1.0.0" }

// Execute proposes entity nodes and memory->entity edges. Nothing is
// persisted here; the orchestrator commits the proposal alongside the
// card so a failed pipeline leaves no orphan graph rows.
func (t *graphBuilderTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	memoryID := stringInput(env.Inputs, "memory_id")
	rawEntities, _ := env.Inputs["entities"].([]any)
	source, _ := env.Inputs["source"].(map[string]any)

	memNode := types.MemoryNodeID(memoryID)
	seenNodes := map[string]bool{}
	var nodes []any
	var edges []any

	for _, raw := range rawEntities {
		if len(edges) == graphBuilderMaxEdges {
			break
		}
		ent, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringInput(ent, "name")
		nodeID, nodeType, canonical, display := graph.CanonicalEntity(name, stringInput(ent, "type"))
		if canonical == "" {
			continue
		}
		confidence := floatInput(ent, "confidence")

		if !seenNodes[nodeID] {
			seenNodes[nodeID] = true
			nodes = append(nodes, map[string]any{
				"node_id":   nodeID,
				"node_type": nodeType,
				"props": map[string]any{
					"name":       display,
					"canonical":  canonical,
					"raw_name":   name,
					"confidence": confidence,
				},
			})
		}

		edgeType := types.EdgeMentions
		if nodeType == types.NodeProject || nodeType == types.NodeTopic {
			edgeType = types.EdgeAbout
		}
		edges = append(edges, map[string]any{
			"from_node_id": memNode,
			"to_node_id":   nodeID,
			"edge_type":    edgeType,
			"weight":       confidence,
			"provenance":   source,
		})
	}

	return map[string]any{
		"nodes": nodes,
		"edges": edges,
	}, nil
}
