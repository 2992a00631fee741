// Package orchestrator runs the ingestion and chat pipelines: it
// selects tools, wires their exec nodes into traces, and commits the
// resulting memory cards, embeddings, and graph updates.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"engram/internal/config"
	"engram/internal/graph"
	"engram/internal/logging"
	"engram/internal/metrics"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/tool"
	"engram/internal/tools"
	"engram/internal/types"
)

// Orchestrator coordinates tool pipelines over the shared stores.
type Orchestrator struct {
	cfg        *config.Config
	store      *store.Store
	graph      *graph.Service
	dispatcher *tool.Dispatcher
	engine     *retrieval.Engine
	deps       tools.Deps
	metrics    *metrics.Metrics
}

// New wires the orchestrator. deps carries the collaborators the chat
// pipeline needs for its pre-computed weave/verify calls.
func New(cfg *config.Config, st *store.Store, dispatcher *tool.Dispatcher, gsvc *graph.Service, engine *retrieval.Engine, deps tools.Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		store:      st,
		graph:      gsvc,
		dispatcher: dispatcher,
		engine:     engine,
		deps:       deps,
	}
}

// SetMetrics attaches the pipeline counters.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// Step is one dispatched tool in a pipeline, for result reporting.
type Step struct {
	Tool      string `json:"tool"`
	Status    string `json:"status"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// run tracks one pipeline execution: its trace and step chain. The
// mutex covers parallel dispatches in the image pipeline.
type run struct {
	mu       sync.Mutex
	traceID  string
	prevNode string
	steps    []Step
}

// dispatch runs one tool under the pipeline's trace. When the run has
// a predecessor exec node, a sequential exec edge is recorded; parallel
// siblings pass predecessor explicitly (or none).
func (o *Orchestrator) dispatch(ctx context.Context, r *run, predecessor, callee string, inputs map[string]any) *tool.Result {
	env := tool.NewEnvelope("orchestrator", callee, inputs)
	env.TraceID = r.traceID
	env.Constraints.TimeoutMS = o.cfg.Tools.DefaultTimeoutMS
	env.Constraints.MaxOutputBytes = o.cfg.Tools.MaxOutputBytes
	env.Constraints.PrivacyMode = o.cfg.Tools.PrivacyMode

	res := o.dispatcher.Dispatch(ctx, env)
	r.mu.Lock()
	r.steps = append(r.steps, Step{Tool: callee, Status: res.Status, ElapsedMS: res.ElapsedMS})
	if res.ExecNodeID != "" {
		r.prevNode = res.ExecNodeID
	}
	r.mu.Unlock()

	if res.ExecNodeID != "" && predecessor != "" {
		if err := o.store.InsertExecEdge(&types.ExecEdge{
			FromExecNodeID: predecessor,
			ToExecNodeID:   res.ExecNodeID,
			Condition:      "sequential",
			TraceID:        r.traceID,
		}); err != nil {
			logging.OrchestratorError("Failed to link exec nodes in trace %s: %v", r.traceID, err)
		}
	}
	return res
}

// dispatchNext chains from the run's previous exec node.
func (o *Orchestrator) dispatchNext(ctx context.Context, r *run, callee string, inputs map[string]any) *tool.Result {
	return o.dispatch(ctx, r, r.prevNode, callee, inputs)
}

// closeTrace finalizes the run's trace; terminal states stick.
func (o *Orchestrator) closeTrace(r *run, status string) {
	if err := o.store.CloseTrace(r.traceID, status); err != nil {
		logging.OrchestratorError("Failed to close trace %s: %v", r.traceID, err)
	}
}

// commitGraph writes the MemoryCard node, the proposed entity nodes,
// and the proposed edges re-rooted at the committed card. Edge ids are
// recomputed after the rewrite; provenance records the proposing call.
func (o *Orchestrator) commitGraph(memoryID, summary string, proposal map[string]any, callID string) error {
	memNode := types.MemoryNodeID(memoryID)
	nodes := []*types.GraphNode{{
		NodeID:   memNode,
		NodeType: types.NodeMemoryCard,
		Props:    map[string]any{"summary": summary},
	}}

	rawNodes, _ := proposal["nodes"].([]any)
	for _, raw := range rawNodes {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		props, _ := m["props"].(map[string]any)
		nodes = append(nodes, &types.GraphNode{
			NodeID:   str(m, "node_id"),
			NodeType: str(m, "node_type"),
			Props:    props,
		})
	}
	if err := o.graph.UpsertNodes(nodes); err != nil {
		return fmt.Errorf("failed to upsert graph nodes: %w", err)
	}

	rawEdges, _ := proposal["edges"].([]any)
	var edges []*types.GraphEdge
	for _, raw := range rawEdges {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		provenance, _ := m["provenance"].(map[string]any)
		if provenance == nil {
			provenance = map[string]any{}
		}
		provenance["call_id"] = callID
		weight, _ := m["weight"].(float64)
		edges = append(edges, &types.GraphEdge{
			// EdgeID left empty: recomputed from the rewritten endpoints.
			FromNodeID: memNode,
			ToNodeID:   str(m, "to_node_id"),
			EdgeType:   str(m, "edge_type"),
			Weight:     weight,
			Provenance: provenance,
		})
	}
	if len(edges) > 0 {
		if err := o.graph.UpsertEdges(edges); err != nil {
			return fmt.Errorf("failed to upsert graph edges: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) observeIngest(pipeline, status string) {
	if o.metrics != nil {
		o.metrics.ObserveIngest(pipeline, status)
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
