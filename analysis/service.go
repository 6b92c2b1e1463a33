package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"docsum/cache"
	"docsum/types"

	"golang.org/x/sync/singleflight"
)

// Result is the outcome of one ingest call.
type Result struct {
	Hash   string
	Cached bool
	Pages  int
	Data   json.RawMessage
}

type Option func(*Service)

// WithInspector replaces the PDF inspector (pdfcpu by default).
func WithInspector(fn func([]byte) (int, error)) Option {
	return func(s *Service) { s.inspect = fn }
}

// WithShapeCheck rejects analysis results whose shape is not understood
// before they are cached.
func WithShapeCheck(fn func(json.RawMessage) error) Option {
	return func(s *Service) { s.checkShape = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service hashes uploads, serves repeats from the cache and calls the
// analyzer at most once per hash at a time.
type Service struct {
	cache      *cache.Cache
	analyzer   Analyzer
	inspect    func([]byte) (int, error)
	checkShape func(json.RawMessage) error
	group      singleflight.Group
	logger     *slog.Logger
}

func NewService(c *cache.Cache, a Analyzer, opts ...Option) *Service {
	s := &Service{
		cache:    c,
		analyzer: a,
		inspect:  InspectPDF,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ingest(ctx context.Context, data []byte, filename string) (*Result, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%w: only .pdf files are accepted, got %q", types.ErrInput, filename)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", types.ErrInput)
	}

	hash := cache.Hash(data)
	if res, ok := s.cache.Get(hash); ok {
		s.logger.Info("analysis.cache_hit", "hash", hash, "filename", filename)
		return &Result{Hash: hash, Cached: true, Data: res}, nil
	}

	pages := 0
	if s.inspect != nil {
		n, err := s.inspect(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a readable PDF: %v", types.ErrInput, filename, err)
		}
		pages = n
	}

	// Joined callers share the first caller's ctx, which is the server base
	// context for HTTP uploads and the loader's run context.
	v, err, shared := s.group.Do(hash, func() (any, error) {
		if res, ok := s.cache.Get(hash); ok {
			return &Result{Hash: hash, Cached: true, Data: res}, nil
		}
		res, err := s.analyzer.Analyze(ctx, data, filename)
		if err != nil {
			return nil, err
		}
		if s.checkShape != nil {
			if err := s.checkShape(res); err != nil {
				return nil, &ServiceError{Status: 502, Detail: "unrecognized analysis result: " + err.Error()}
			}
		}
		s.cache.Put(hash, res)
		return &Result{Hash: hash, Data: res}, nil
	})
	if err != nil {
		s.logger.Error("analysis.failed", "hash", hash, "filename", filename, "error", err)
		return nil, err
	}

	out := *v.(*Result)
	out.Pages = pages
	if shared {
		s.logger.Debug("analysis.shared", "hash", hash)
	}
	return &out, nil
}

// Get returns the cached analysis for hash or types.ErrNotFound.
func (s *Service) Get(hash string) (json.RawMessage, error) {
	if !cache.ValidHash(hash) {
		return nil, fmt.Errorf("%w: analysis %q", types.ErrNotFound, hash)
	}
	res, ok := s.cache.Get(hash)
	if !ok {
		return nil, fmt.Errorf("%w: analysis %s", types.ErrNotFound, hash)
	}
	return res, nil
}
