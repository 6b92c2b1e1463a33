package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docsum/analysis"
	"docsum/app/agent"
	"docsum/cache"
	"docsum/config"
	"docsum/model"
	"docsum/segment"
	"docsum/store"
	"docsum/summary"
	"docsum/types"
)

// Deps holds the collaborators shared by the HTTP server and the loader.
// Summaries.Enabled and Engine report which optional parts came up.
type Deps struct {
	Cache     *cache.Cache
	Ingest    *analysis.Service
	Docs      *segment.Source
	Summaries *summary.Service
	Engine    *agent.Engine

	closers []func() error
}

type noAnalyzer struct{}

func (noAnalyzer) Analyze(context.Context, []byte, string) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: ANALYSIS_URL is empty", types.ErrNotConfigured)
}

// NewDeps builds every collaborator from cfg. Missing credentials disable
// chat and summarization instead of failing startup.
func NewDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	c, err := cache.New(cfg.Cache.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	var analyzer analysis.Analyzer = noAnalyzer{}
	if cfg.Analysis.URL != "" {
		analyzer = analysis.NewClient(cfg.Analysis.URL, cfg.Analysis.Timeout, logger)
	} else {
		logger.Warn("analysis service not configured")
	}

	d := &Deps{Cache: c}
	d.Ingest = analysis.NewService(c, analyzer,
		analysis.WithShapeCheck(segment.CheckShape),
		analysis.WithLogger(logger))
	d.Docs = segment.NewSource(d.Ingest)

	gen, err := model.NewGenerator(ctx, cfg.LLM)
	if err != nil {
		logger.Warn("generation disabled", "provider", cfg.LLM.Provider, "error", err)
		gen = nil
	}

	var job *summary.Job
	if gen != nil {
		job = summary.NewJob(gen, c, summary.Options{
			CheckpointEvery: cfg.Summary.CheckpointEvery,
			MaxAttempts:     cfg.Summary.MaxAttempts,
			SegmentDelay:    cfg.Summary.SegmentDelay,
			DefaultBackoff:  cfg.Summary.DefaultBackoff,
		}, summary.WithJobLogger(logger))
	}
	d.Summaries = summary.NewService(c, d.Docs, job, logger)

	if gen != nil {
		index, err := d.newIndex(ctx, cfg, logger)
		if err != nil {
			logger.Warn("retrieval disabled", "backend", cfg.Vector.Backend, "error", err)
		} else {
			var tokens model.TokenCounter = model.RuneCounter{}
			if tk, err := model.NewTiktoken(); err == nil {
				tokens = tk
			} else {
				logger.Warn("tiktoken unavailable, estimating tokens", "error", err)
			}
			d.Engine = agent.NewEngine(d.Docs, index, gen, agent.Options{
				TopK:             cfg.Query.TopK,
				ContextMaxTokens: cfg.Query.ContextMaxTokens,
				ChunkSize:        cfg.Query.ChunkSize,
				ChunkOverlap:     cfg.Query.ChunkOverlap,
			}, agent.WithTokenCounter(tokens), agent.WithLogger(logger))
		}
	}

	return d, nil
}

func (d *Deps) newIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Index, error) {
	embedder, err := model.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	switch cfg.Vector.Backend {
	case "pgvector":
		pg, err := store.NewPostgresStore(ctx, cfg.Vector.PostgresConnString(), embedder, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
		d.closers = append(d.closers, pg.Close)
		return pg, nil
	case "chroma":
		ce, ok := embedder.(*model.ChromaEmbedder)
		if !ok {
			return nil, errors.New("chroma backend needs gemini or openai embeddings")
		}
		cs, err := store.NewChromaStore(cfg.Vector.ChromaURL, ce.Func(), logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, cs.Close)
		return cs, nil
	default:
		return store.NewMemory(embedder), nil
	}
}

func (d *Deps) Close() error {
	var errs []error
	for _, fn := range d.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}
