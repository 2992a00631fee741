// Package api exposes the HTTP surface: capture intake, chat, search,
// and read-only views over cards, traces, and turns.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engram/internal/config"
	"engram/internal/graph"
	"engram/internal/logging"
	"engram/internal/metrics"
	"engram/internal/orchestrator"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/vector"
)

// Server wires the HTTP handlers over the shared services.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	vectors  vector.Store
	engine   *retrieval.Engine
	orch     *orchestrator.Orchestrator
	graph    *graph.Service
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
}

// New builds the server. gatherer may be nil to disable /metrics.
func New(cfg *config.Config, st *store.Store, vs vector.Store, engine *retrieval.Engine, orch *orchestrator.Orchestrator, gsvc *graph.Service, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		vectors:  vs,
		engine:   engine,
		orch:     orch,
		graph:    gsvc,
		gatherer: gatherer,
	}
}

// SetMetrics attaches the capture counter.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/capture", s.requireCaptureKey, s.handleCapture)
		v1.POST("/chat", s.handleChat)
		v1.GET("/search", s.handleSearch)
		v1.GET("/cards", s.handleListCards)
		v1.GET("/cards/:id", s.handleGetCard)
		v1.GET("/traces/:id", s.handleGetTrace)
		v1.GET("/turns", s.handleListTurns)
		v1.GET("/digest", s.handleDigest)
		v1.GET("/graph/nodes/:id", s.handleGraphNode)
	}
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.API.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("Listening on %s", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// requireCaptureKey gates capture intake behind the shared key when one
// is configured.
func (s *Server) requireCaptureKey(c *gin.Context) {
	key := s.cfg.API.CaptureAPIKey
	if key == "" {
		return
	}
	if c.GetHeader("X-API-Key") != key {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
	}
}
