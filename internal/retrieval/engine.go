// Package retrieval implements the hybrid retrieval engine: lexical
// full-text, dense-vector, graph-expansion, and recency signals fused
// into one explainable score per memory card.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"engram/internal/llm"
	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/vector"
)

// Fusion weights and thresholds.
const (
	weightSemantic = 0.45
	weightLexical  = 0.35
	weightGraph    = 0.15
	weightRecency  = 0.05

	// MinScore drops weak candidates after fusion.
	MinScore = 0.18

	// Graph-expansion scores by hop distance.
	hop1Score = 0.7
	hop2Score = 0.4

	recencyHalfLifeDays = 30.0
)

// sourceBoosts nudge scores by capture provenance.
var sourceBoosts = map[string]float64{
	"browser_highlight": 0.10,
	"browser_bookmark":  0.05,
	"file_capture":      0.03,
	"audio_note":        0.03,
	"browser_visit":     -0.10,
}

// Request parameterizes one retrieval.
type Request struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	TimeFrom    string   `json:"time_from,omitempty"`
	TimeTo      string   `json:"time_to,omitempty"`
	SourceTypes []string `json:"source_types,omitempty"`
	UseSemantic bool     `json:"use_semantic"`
	UseGraph    bool     `json:"use_graph"`
	Hops        int      `json:"hops"`

	// Per-signal candidate caps; zero means default.
	FTSK  int `json:"fts_k,omitempty"`
	VecK  int `json:"vec_k,omitempty"`
	SeedK int `json:"seed_k,omitempty"`
}

// GraphPath explains how graph expansion reached a card.
type GraphPath struct {
	ViaEntityIDs []string `json:"via_entity_ids"`
}

// Result is one scored candidate with its per-signal breakdown.
type Result struct {
	MemoryID   string             `json:"memory_id"`
	Score      float64            `json:"score"`
	Signals    map[string]float64 `json:"signals"`
	Reasons    []string           `json:"reasons"`
	GraphPath  *GraphPath         `json:"graph_path,omitempty"`
	Summary    string             `json:"summary"`
	SourceType string             `json:"source_type,omitempty"`
	CreatedAt  string             `json:"created_at"`
}

// Engine fuses the retrieval signals.
type Engine struct {
	store    *store.Store
	vectors  vector.Store
	embedder *llm.Embedder
	now      func() time.Time
}

// NewEngine wires the engine's collaborators.
func NewEngine(st *store.Store, vs vector.Store, emb *llm.Embedder) *Engine {
	return &Engine{store: st, vectors: vs, embedder: emb, now: time.Now}
}

type candidate struct {
	fts      float64
	semantic float64
	graph    float64
	path     *GraphPath
}

// Retrieve runs the four stages and returns the fused top-k.
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]*Result, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	if req.TopK <= 0 {
		req.TopK = 10
	}
	ftsK := req.FTSK
	if ftsK <= 0 {
		ftsK = 50
	}
	vecK := req.VecK
	if vecK <= 0 {
		vecK = 50
	}
	seedK := req.SeedK
	if seedK <= 0 {
		seedK = 5
	}

	candidates := map[string]*candidate{}
	get := func(id string) *candidate {
		c, ok := candidates[id]
		if !ok {
			c = &candidate{}
			candidates[id] = c
		}
		return c
	}

	// Stage 1: lexical.
	match := SanitizeQuery(req.Query)
	if match != "" {
		hits, err := e.store.SearchCardSummaries(match, ftsK, req.TimeFrom, req.TimeTo, req.SourceTypes)
		if err != nil {
			logging.Retrieval("FTS stage failed: %v", err)
		} else {
			for _, h := range hits {
				get(h.MemoryID).fts = 1.0 / (1.0 + math.Abs(h.Rank))
			}
			logging.RetrievalDebug("FTS stage: %d hits", len(hits))
		}
	}

	// Stage 2: semantic.
	if req.UseSemantic && e.vectors != nil && e.embedder != nil {
		qvec, _, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			logging.Retrieval("Query embedding failed: %v", err)
		} else {
			hits, err := e.vectors.Search(ctx, vector.CollectionText, qvec, vecK, nil)
			if err != nil {
				logging.Retrieval("Semantic stage failed: %v", err)
			} else {
				for _, h := range hits {
					get(h.PointID).semantic = clamp01(h.Score)
				}
				logging.RetrievalDebug("Semantic stage: %d hits", len(hits))
			}
		}
	}

	// Stage 3: graph expansion from the strongest preliminary seeds.
	if req.UseGraph && req.Hops > 0 && len(candidates) > 0 {
		seeds := topSeeds(candidates, seedK)
		expanded, err := ExpandFromSeeds(e.store, seeds, req.Hops, 200)
		if err != nil {
			logging.Retrieval("Graph stage failed: %v", err)
		} else {
			for memID, hit := range expanded {
				c := get(memID)
				score := hop1Score
				if hit.Hop == 2 {
					score = hop2Score
				}
				if score > c.graph {
					c.graph = score
					c.path = &GraphPath{ViaEntityIDs: hit.ViaEntityIDs}
				}
			}
			logging.RetrievalDebug("Graph stage: %d expanded", len(expanded))
		}
	}

	// Stage 4: fusion.
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	cards, err := e.store.GetMemoryCards(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate cards: %w", err)
	}

	var results []*Result
	for id, c := range candidates {
		card, ok := cards[id]
		if !ok {
			continue
		}
		createdAt := NormalizeISO(card.CreatedAt)
		if req.TimeFrom != "" && createdAt < NormalizeISO(req.TimeFrom) {
			continue
		}
		if req.TimeTo != "" && createdAt > NormalizeISO(req.TimeTo) {
			continue
		}
		sourceType, _ := card.Metadata["source_type"].(string)
		if len(req.SourceTypes) > 0 && !contains(req.SourceTypes, sourceType) {
			continue
		}

		recency := e.recency(createdAt)
		boost := sourceBoosts[sourceType]
		final := weightSemantic*c.semantic + weightLexical*c.fts +
			weightGraph*c.graph + weightRecency*recency + boost
		final = clamp01(final)
		if final < MinScore {
			continue
		}

		var reasons []string
		if c.fts > 0 {
			reasons = append(reasons, "fts_match")
		}
		if c.semantic > 0 {
			reasons = append(reasons, "semantic_text")
		}
		if c.graph > 0 {
			reasons = append(reasons, "graph_expand")
		}

		results = append(results, &Result{
			MemoryID: id,
			Score:    final,
			Signals: map[string]float64{
				"semantic":     c.semantic,
				"fts":          c.fts,
				"graph":        c.graph,
				"recency":      recency,
				"source_boost": boost,
			},
			Reasons:    reasons,
			GraphPath:  c.path,
			Summary:    card.Summary,
			SourceType: sourceType,
			CreatedAt:  createdAt,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	logging.Retrieval("Query %q: %d candidates, %d returned", req.Query, len(candidates), len(results))
	return results, nil
}

// recency decays exponentially with age in days.
func (e *Engine) recency(createdAt string) float64 {
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0
	}
	days := e.now().UTC().Sub(ts).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / recencyHalfLifeDays)
}

// topSeeds ranks candidates by the preliminary semantic+lexical blend.
func topSeeds(candidates map[string]*candidate, k int) []string {
	type scored struct {
		id    string
		score float64
	}
	all := make([]scored, 0, len(candidates))
	for id, c := range candidates {
		all = append(all, scored{id, weightSemantic*c.semantic + weightLexical*c.fts})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if len(all) > k {
		all = all[:k]
	}
	seeds := make([]string, len(all))
	for i, s := range all {
		seeds[i] = s.id
	}
	return seeds
}

// ftsSyntax lists the full-text operators stripped from user queries.
const ftsSyntax = `"*:^(){}?!`

// SanitizeQuery strips full-text syntax and rebuilds the query as
// quoted tokens joined with OR.
func SanitizeQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(ftsSyntax, r) {
			return ' '
		}
		return r
	}, query)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if !hasAlnum(tok) {
			continue
		}
		tokens = append(tokens, `"`+tok+`"`)
	}
	return strings.Join(tokens, " OR ")
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127 {
			return true
		}
	}
	return false
}

// NormalizeISO rewrites "2024-01-01 12:00:00" timestamps to the
// RFC3339 "T" form so string comparisons stay consistent.
func NormalizeISO(ts string) string {
	if len(ts) > 10 && ts[10] == ' ' {
		return ts[:10] + "T" + ts[11:]
	}
	return ts
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
