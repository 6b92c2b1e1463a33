package summary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"docsum/cache"
	"docsum/types"

	"golang.org/x/sync/singleflight"
)

// SegmentSource yields the ordered segments of a cached document.
type SegmentSource interface {
	Segments(hash string) ([]types.Segment, error)
}

// Service runs summarization jobs with at most one run per document at a time.
type Service struct {
	cache  *cache.Cache
	docs   SegmentSource
	job    *Job
	logger *slog.Logger

	group   singleflight.Group
	mu      sync.Mutex
	running map[string]bool
}

// NewService wires a job runner. job may be nil when no generator is
// configured; Summarize then returns types.ErrNotConfigured.
func NewService(c *cache.Cache, docs SegmentSource, job *Job, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:   c,
		docs:    docs,
		job:     job,
		logger:  logger,
		running: make(map[string]bool),
	}
}

func (s *Service) Enabled() bool {
	return s.job != nil
}

// Summarize runs or resumes the job for hash according to params. On
// extraction failure the returned response has status failed alongside the error.
func (s *Service) Summarize(ctx context.Context, hash string, params types.SummaryParams) (*types.SummaryResponse, error) {
	if s.job == nil {
		return nil, fmt.Errorf("%w: summarization needs a generation model", types.ErrNotConfigured)
	}

	segments, err := s.docs.Segments(hash)
	if err != nil {
		return s.failed(hash, err)
	}
	if err := s.cache.SaveTotal(hash, len(segments)); err != nil {
		s.logger.Warn("summary.total_not_saved", "hash", hash, "error", err)
	}

	record, err := s.cache.LoadSummaries(hash)
	if err != nil {
		return s.failed(hash, err)
	}
	if types.IsComplete(record, len(segments)) {
		return response(hash, record, len(segments)), nil
	}
	if params.ReturnPartial && !params.Resume && len(record) > 0 {
		s.logger.Info("summary.partial_returned", "hash", hash, "count", len(record))
		return response(hash, record, len(segments)), nil
	}

	// Joined callers share the first caller's ctx; cancelling it stops the run
	// at a checkpoint for all of them.
	v, err, shared := s.group.Do(hash, func() (any, error) {
		s.setRunning(hash, true)
		defer s.setRunning(hash, false)
		return s.job.Run(ctx, hash, segments)
	})
	if err != nil {
		return s.failed(hash, err)
	}
	if shared {
		s.logger.Info("summary.joined_running_job", "hash", hash)
	}

	out := v.(*Outcome)
	return response(hash, out.Record, out.Total), nil
}

// State derives the job state from the checkpoint files.
func (s *Service) State(hash string) (*types.JobState, error) {
	record, err := s.cache.LoadSummaries(hash)
	if err != nil {
		return &types.JobState{Hash: hash, Status: types.StatusFailed}, nil
	}

	total := s.cache.LoadTotal(hash)
	if total < 0 {
		segments, err := s.docs.Segments(hash)
		switch {
		case err == nil:
			total = len(segments)
		case len(record) == 0:
			if isNotFound(err) {
				return nil, err
			}
			return &types.JobState{Hash: hash, Status: types.StatusFailed}, nil
		}
	}

	st := &types.JobState{
		Hash:      hash,
		Count:     len(record),
		Total:     total,
		Percent:   percent(len(record), total),
		Running:   s.isRunning(hash),
		UpdatedAt: s.cache.SummariesUpdatedAt(hash),
	}
	switch {
	case types.IsComplete(record, total):
		st.Status = types.StatusComplete
	case st.Running || len(record) > 0:
		st.Status = types.StatusInProgress
	default:
		st.Status = types.StatusNotStarted
	}
	return st, nil
}

// Record returns the persisted summaries for hash.
func (s *Service) Record(hash string) (types.SummaryRecord, error) {
	if _, err := s.docs.Segments(hash); err != nil && isNotFound(err) {
		return nil, err
	}
	return s.cache.LoadSummaries(hash)
}

func (s *Service) failed(hash string, err error) (*types.SummaryResponse, error) {
	if isNotFound(err) {
		return nil, err
	}
	s.logger.Error("summary.failed", "hash", hash, "error", err)
	return &types.SummaryResponse{Hash: hash, Status: types.StatusFailed, Summaries: types.SummaryRecord{}}, err
}

func (s *Service) setRunning(hash string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.running[hash] = true
	} else {
		delete(s.running, hash)
	}
}

func (s *Service) isRunning(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[hash]
}

func response(hash string, record types.SummaryRecord, total int) *types.SummaryResponse {
	complete := types.IsComplete(record, total)
	status := types.StatusInProgress
	if complete {
		status = types.StatusComplete
	}
	return &types.SummaryResponse{
		Hash:      hash,
		Status:    status,
		Count:     len(record),
		Total:     total,
		Percent:   percent(len(record), total),
		Partial:   !complete,
		Summaries: record,
	}
}

func percent(count, total int) float64 {
	if total <= 0 {
		if total == 0 {
			return 100
		}
		return 0
	}
	p := float64(count) / float64(total) * 100
	return math.Min(100, math.Round(p*10)/10)
}
