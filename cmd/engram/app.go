package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"engram/internal/config"
	"engram/internal/extract"
	"engram/internal/graph"
	"engram/internal/llm"
	"engram/internal/logging"
	"engram/internal/metrics"
	"engram/internal/orchestrator"
	"engram/internal/retrieval"
	"engram/internal/store"
	"engram/internal/tool"
	"engram/internal/tools"
	"engram/internal/vector"
)

// app holds the wired service graph every command runs against.
type app struct {
	cfg        *config.Config
	store      *store.Store
	vectors    vector.Store
	llmClient  *llm.Client
	embedder   *llm.Embedder
	engine     *retrieval.Engine
	graph      *graph.Service
	dispatcher *tool.Dispatcher
	orch       *orchestrator.Orchestrator
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
}

// openApp loads config and opens every store. Callers must Close.
func openApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Storage.DataDir); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	var vs vector.Store
	if cfg.Vector.Mode == "qdrant" {
		vs = vector.NewQdrant(cfg.Vector.QdrantURL, cfg.VectorTimeout())
	} else {
		local, err := vector.NewLocal(cfg.VectorDBPath())
		if err != nil {
			st.Close()
			return nil, err
		}
		vs = local
	}

	llmClient := llm.NewClient(cfg.LLM.OllamaURL, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.LLMTimeout())
	embedClient := llmClient
	if cfg.LLM.EmbedMode == "stub" {
		embedClient = nil
	}
	embedder := llm.NewEmbedder(embedClient)
	engine := retrieval.NewEngine(st, vs, embedder)
	gsvc := graph.New(st)

	deps := tools.Deps{
		Config:   cfg,
		Store:    st,
		Vectors:  vs,
		Embedder: embedder,
		LLM:      llmClient,
		Tika:     extract.NewTika(cfg.Extraction.TikaURL, cfg.ExtractionTimeout()),
		Engine:   engine,
	}
	reg := tool.NewRegistry()
	if err := tools.RegisterAll(reg, deps); err != nil {
		closeStores(st, vs)
		return nil, err
	}
	dispatcher := tool.NewDispatcher(reg, st)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	dispatcher.SetObserver(m)

	orch := orchestrator.New(cfg, st, dispatcher, gsvc, engine, deps)
	orch.SetMetrics(m)

	return &app{
		cfg:        cfg,
		store:      st,
		vectors:    vs,
		llmClient:  llmClient,
		embedder:   embedder,
		engine:     engine,
		graph:      gsvc,
		dispatcher: dispatcher,
		orch:       orch,
		metrics:    m,
		registry:   registry,
	}, nil
}

func (a *app) Close() {
	closeStores(a.store, a.vectors)
}

func closeStores(st *store.Store, vs vector.Store) {
	if local, ok := vs.(*vector.Local); ok {
		_ = local.Close()
	}
	if st != nil {
		_ = st.Close()
	}
}
