package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"engram/internal/capture"
	"engram/internal/logging"
	"engram/internal/orchestrator"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/types"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.cfg.Version,
		"vector":  s.vectors.Healthy(c.Request.Context()),
	})
}

func (s *Server) handleCapture(c *gin.Context) {
	var body capture.Capture
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	jobID, created, err := capture.Save(s.cfg, s.store, &body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	if created && s.metrics != nil {
		s.metrics.CapturesTotal.Inc()
	}
	c.JSON(status, gin.H{"job_id": jobID, "created": created})
}

type chatRequest struct {
	Message  string `json:"message" binding:"required"`
	TopK     int    `json:"top_k"`
	UseGraph bool   `json:"use_graph"`
	Hops     int    `json:"hops"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.orch.Chat(c.Request.Context(), orchestrator.ChatRequest{
		Message:  req.Message,
		TopK:     req.TopK,
		UseGraph: req.UseGraph,
		Hops:     req.Hops,
	})
	if err != nil {
		logging.APIError("Chat failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat pipeline failed"})
		return
	}
	if res.Status == types.StatusRejected {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q must not be empty"})
		return
	}
	req := retrieval.Request{
		Query:       q,
		TopK:        intQuery(c, "k", 0),
		UseSemantic: c.DefaultQuery("semantic", "true") == "true",
		UseGraph:    c.Query("graph") == "true",
		Hops:        intQuery(c, "hops", 0),
		TimeFrom:    c.Query("from"),
		TimeTo:      c.Query("to"),
	}
	if st := c.Query("source_types"); st != "" {
		req.SourceTypes = strings.Split(st, ",")
	}
	results, err := s.engine.Retrieve(c.Request.Context(), req)
	if err != nil {
		logging.APIError("Search failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": results})
}

func (s *Server) handleListCards(c *gin.Context) {
	cards, err := s.store.ListMemoryCards(intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cards"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}

func (s *Server) handleGetCard(c *gin.Context) {
	card, err := s.store.GetMemoryCard(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load card"})
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) handleGetTrace(c *gin.Context) {
	id := c.Param("id")
	trace, err := s.store.GetTrace(id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trace"})
		return
	}
	nodes, err := s.store.TraceNodes(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trace nodes"})
		return
	}
	edges, err := s.store.TraceEdges(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trace edges"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trace": trace, "nodes": nodes, "edges": edges})
}

func (s *Server) handleListTurns(c *gin.Context) {
	turns, err := s.store.ListTurns(intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list turns"})
		return
	}
	ids := make([]string, len(turns))
	for i, turn := range turns {
		ids[i] = turn.TurnID
	}
	counts, err := s.store.CountTurnCitations(ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count citations"})
		return
	}
	items := make([]gin.H, len(turns))
	for i, turn := range turns {
		items[i] = gin.H{"turn": turn, "citations": counts[turn.TurnID]}
	}
	c.JSON(http.StatusOK, gin.H{"turns": items})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
