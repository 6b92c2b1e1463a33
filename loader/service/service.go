package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docsum/analysis"
	"docsum/loader/internal"
	"docsum/types"
)

const retryDelay = time.Minute

type Ingester interface {
	Ingest(ctx context.Context, data []byte, filename string) (*analysis.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, hash string, params types.SummaryParams) (*types.SummaryResponse, error)
}

type Service struct {
	logger    *slog.Logger
	inbox     *internal.Inbox
	ingest    Ingester
	summaries Summarizer
}

// New builds the loader. summaries may be nil to skip summarization.
func New(inbox *internal.Inbox, ingest Ingester, summaries Summarizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:    logger,
		inbox:     inbox,
		ingest:    ingest,
		summaries: summaries,
	}
}

// Run watches the inbox and processes files one at a time until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	fileChan := make(chan string, 10)
	var wg sync.WaitGroup
	var watchErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		watchErr = s.inbox.Watch(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileChan {
			if ctx.Err() != nil {
				s.inbox.Release(path, 0)
				continue
			}
			s.Process(ctx, path)
		}
	}()

	wg.Wait()
	s.logger.Info("Loader Service stopped")
	return watchErr
}

// Process ingests one file and files it away. Rejected files go to the bad
// dir; upstream failures leave the file in the inbox for a later retry.
func (s *Service) Process(ctx context.Context, path string) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("loader.read_failed", "path", path, "error", err)
		s.inbox.Release(path, 0)
		return
	}

	res, err := s.ingest.Ingest(ctx, data, filepath.Base(path))
	if err != nil {
		if retryable(err) {
			s.logger.Warn("loader.retry_later", "path", path, "error", err, "retry_in", retryDelay)
			s.inbox.Release(path, retryDelay)
			return
		}
		s.logger.Error("loader.rejected", "path", path, "error", err)
		s.file(path, internal.StateBad)
		return
	}

	s.logger.Info("loader.ingested", "path", path, "hash", res.Hash, "cached", res.Cached, "took", time.Since(start))
	s.file(path, internal.StateDone)

	if s.summaries == nil {
		return
	}
	sum, err := s.summaries.Summarize(ctx, res.Hash, types.SummaryParams{Resume: true})
	if err != nil {
		s.logger.Error("loader.summary_failed", "hash", res.Hash, "error", err)
		return
	}
	s.logger.Info("loader.summarized", "hash", res.Hash, "status", sum.Status, "count", sum.Count, "total", sum.Total)
}

func (s *Service) file(path string, state internal.FileState) {
	dest, err := s.inbox.MoveToArchive(path, state)
	s.inbox.Release(path, 0)
	if err != nil {
		s.logger.Error("loader.archive_failed", "path", path, "error", err)
		return
	}
	s.logger.Info("loader.moved", "from", path, "to", dest)
}

func retryable(err error) bool {
	if errors.Is(err, types.ErrInput) {
		return false
	}
	var svcErr *analysis.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Status >= 500 && svcErr.Status != 502
	}
	return true
}
