package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"docsum/model"
	"docsum/store"
	"docsum/types"

	"golang.org/x/sync/singleflight"
)

// SegmentSource yields the ordered segments of a cached document.
type SegmentSource interface {
	Segments(hash string) ([]types.Segment, error)
}

type Options struct {
	TopK             int
	ContextMaxTokens int
	ChunkSize        int
	ChunkOverlap     int
}

func DefaultOptions() Options {
	return Options{TopK: 4, ContextMaxTokens: 6000, ChunkSize: 180, ChunkOverlap: 25}
}

// Engine answers questions about one document at a time from its indexed
// segments.
type Engine struct {
	docs   SegmentSource
	index  store.Index
	gen    model.Generator
	tokens model.TokenCounter
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	built map[string][]store.Chunk
}

type Option func(*Engine)

func WithTokenCounter(tc model.TokenCounter) Option {
	return func(e *Engine) { e.tokens = tc }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(docs SegmentSource, index store.Index, gen model.Generator, opts Options, engineOpts ...Option) *Engine {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.ContextMaxTokens <= 0 {
		opts.ContextMaxTokens = def.ContextMaxTokens
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	e := &Engine{
		docs:   docs,
		index:  index,
		gen:    gen,
		tokens: model.RuneCounter{},
		opts:   opts,
		logger: slog.Default(),
		now:    time.Now,
		built:  make(map[string][]store.Chunk),
	}
	for _, o := range engineOpts {
		o(e)
	}
	return e
}

// ensureIndex builds the index for hash once per process and returns its chunks.
func (e *Engine) ensureIndex(ctx context.Context, hash string) ([]store.Chunk, error) {
	e.mu.RLock()
	chunks, ok := e.built[hash]
	e.mu.RUnlock()
	if ok {
		return chunks, nil
	}

	// Joined callers share the first caller's ctx. Handlers all run on the
	// server base context, so a cancel here is a shutdown for every caller.
	v, err, _ := e.group.Do(hash, func() (any, error) {
		e.mu.RLock()
		chunks, ok := e.built[hash]
		e.mu.RUnlock()
		if ok {
			return chunks, nil
		}

		segments, err := e.docs.Segments(hash)
		if err != nil {
			return nil, err
		}
		chunks = store.Split(segments, e.opts.ChunkSize, e.opts.ChunkOverlap)

		start := time.Now()
		if err := e.index.Build(ctx, hash, chunks); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		e.logger.Info("query.index_ready", "hash", hash, "segments", len(segments), "chunks", len(chunks), "took", time.Since(start))

		e.mu.Lock()
		e.built[hash] = chunks
		e.mu.Unlock()
		return chunks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]store.Chunk), nil
}

// Query answers query from the document identified by hash.
func (e *Engine) Query(ctx context.Context, hash, query string) (*types.ChatResponse, error) {
	chunks, err := e.ensureIndex(ctx, hash)
	if err != nil {
		return nil, err
	}

	if isDescriptive(query) {
		e.logger.Info("query.descriptive", "hash", hash)
		return e.overview(ctx, query, chunks, false)
	}

	hits, err := e.index.Search(ctx, hash, query, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(hits) == 0 {
		e.logger.Info("query.no_hits", "hash", hash)
		return e.respond(noResultsAnswer, []types.Source{}, false), nil
	}

	block, used := e.contextBlock(hits)
	answer, err := e.gen.Generate(ctx, []model.Message{
		{Role: model.RoleSystem, Content: groundedSystem},
		{Role: model.RoleUser, Content: groundedPrompt(block, query)},
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	if isDegenerate(answer) {
		e.logger.Warn("query.empty_answer", "hash", hash, "hits", len(hits))
		return e.overview(ctx, query, chunks, true)
	}

	e.logger.Info("query.answered", "hash", hash, "hits", len(hits), "context_chunks", used)
	return e.respond(strings.TrimSpace(answer), sources(hits), false), nil
}

// contextBlock joins hit texts up to the token budget, always keeping the first.
func (e *Engine) contextBlock(hits []types.Hit) (string, int) {
	var parts []string
	budget := e.opts.ContextMaxTokens
	for _, h := range hits {
		n := e.tokens.Count(h.Text)
		if len(parts) > 0 && n > budget {
			break
		}
		parts = append(parts, h.Text)
		budget -= n
	}
	return strings.Join(parts, contextDelimiter), len(parts)
}

// overview answers from a sample of the document instead of retrieval.
func (e *Engine) overview(ctx context.Context, query string, chunks []store.Chunk, fallback bool) (*types.ChatResponse, error) {
	if len(chunks) == 0 {
		return e.respond(noSamplesAnswer, []types.Source{}, fallback), nil
	}

	n := min(overviewSamples, len(chunks))
	samples := make([]string, 0, n)
	for _, c := range chunks[:n] {
		samples = append(samples, truncate(c.Content, overviewSampleLen))
	}
	joined := strings.Join(samples, "\n\n")

	prompt := describePrompt(query, joined)
	if fallback {
		prompt = fallbackPrompt(query, joined)
	}
	answer, err := e.gen.Generate(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("generate overview: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if isDegenerate(answer) {
		return e.respond(noSamplesAnswer, []types.Source{}, fallback), nil
	}
	if fallback {
		answer = fallbackPrefix + answer
	}
	return e.respond(answer, []types.Source{}, fallback), nil
}

func (e *Engine) respond(answer string, src []types.Source, fallback bool) *types.ChatResponse {
	return &types.ChatResponse{
		Response:  answer,
		Sources:   src,
		Fallback:  fallback,
		Timestamp: e.now().UTC(),
	}
}

func sources(hits []types.Hit) []types.Source {
	out := make([]types.Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.Source{
			ContentPreview: truncate(h.Text, previewLen),
			Metadata: types.SourceMetadata{
				DocumentID: h.DocumentID,
				SegmentID:  h.SegmentID,
				Page:       h.Page,
				Type:       h.Type,
				Score:      h.Score,
			},
		})
	}
	return out
}
