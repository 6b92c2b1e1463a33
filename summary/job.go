package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docsum/model"
	"docsum/types"
)

const systemPrompt = "You summarize passages taken from PDF documents. " +
	"Reply with a concise summary of one or two sentences and nothing else."

// Checkpointer persists the summary record of one document.
type Checkpointer interface {
	LoadSummaries(hash string) (types.SummaryRecord, error)
	SaveSummaries(hash string, record types.SummaryRecord) error
}

type Options struct {
	CheckpointEvery int
	MaxAttempts     int
	SegmentDelay    time.Duration
	DefaultBackoff  time.Duration
}

func DefaultOptions() Options {
	return Options{
		CheckpointEvery: 10,
		MaxAttempts:     5,
		SegmentDelay:    time.Second,
		DefaultBackoff:  30 * time.Second,
	}
}

// Outcome describes one run of the job.
type Outcome struct {
	Record      types.SummaryRecord
	Total       int
	Complete    bool
	Processed   int
	Retries     int
	Interrupted bool
}

// Job summarizes the segments of one document, one generation call per
// segment, checkpointing progress so a later run resumes where this one stopped.
type Job struct {
	gen    model.Generator
	store  Checkpointer
	opts   Options
	sleep  SleepFunc
	logger *slog.Logger
}

type JobOption func(*Job)

// WithSleep replaces the wait used for backoff and pacing.
func WithSleep(fn SleepFunc) JobOption {
	return func(j *Job) { j.sleep = fn }
}

func WithJobLogger(l *slog.Logger) JobOption {
	return func(j *Job) { j.logger = l }
}

func NewJob(gen model.Generator, store Checkpointer, opts Options, jobOpts ...JobOption) *Job {
	def := DefaultOptions()
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = def.CheckpointEvery
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.DefaultBackoff <= 0 {
		opts.DefaultBackoff = def.DefaultBackoff
	}
	j := &Job{
		gen:    gen,
		store:  store,
		opts:   opts,
		sleep:  sleepCtx,
		logger: slog.Default(),
	}
	for _, o := range jobOpts {
		o(j)
	}
	return j
}

// Run summarizes every segment missing from the persisted record. Segments
// already present are never sent again. Cancelling ctx stops the run after a
// final checkpoint; the returned outcome is then marked Interrupted.
func (j *Job) Run(ctx context.Context, hash string, segments []types.Segment) (*Outcome, error) {
	record, err := j.store.LoadSummaries(hash)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if record == nil {
		record = types.SummaryRecord{}
	}

	out := &Outcome{Record: record, Total: len(segments)}

	todo := make([]types.Segment, 0, len(segments))
	for _, seg := range segments {
		if _, done := record[seg.ID]; !done {
			todo = append(todo, seg)
		}
	}
	if len(todo) == 0 {
		out.Complete = types.IsComplete(record, out.Total)
		j.logger.Info("summary.nothing_to_do", "hash", hash, "count", len(record))
		return out, nil
	}

	j.logger.Info("summary.start", "hash", hash, "total", out.Total, "done", len(record), "todo", len(todo))
	start := time.Now()

	for i, seg := range todo {
		if ctx.Err() != nil {
			return j.interrupt(hash, out), nil
		}

		entry, retries, err := j.summarize(ctx, hash, seg, record)
		out.Retries += retries
		if err != nil {
			return j.interrupt(hash, out), nil
		}
		record[seg.ID] = entry
		out.Processed++

		if out.Processed%j.opts.CheckpointEvery == 0 {
			j.checkpoint(hash, record)
		}

		if i < len(todo)-1 && j.opts.SegmentDelay > 0 {
			if err := j.sleep(ctx, j.opts.SegmentDelay); err != nil {
				return j.interrupt(hash, out), nil
			}
		}
	}

	j.checkpoint(hash, record)
	out.Complete = types.IsComplete(record, out.Total)
	j.logger.Info("summary.done", "hash", hash, "processed", out.Processed, "retries", out.Retries,
		"count", len(record), "took", time.Since(start))
	return out, nil
}

// summarize returns the entry for seg. It only fails when ctx is cancelled;
// every other failure becomes a marker entry.
func (j *Job) summarize(ctx context.Context, hash string, seg types.Segment, record types.SummaryRecord) (types.SummaryEntry, int, error) {
	msgs := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: "Summarize the following text:\n\n" + seg.Text},
	}

	retries := 0
	for attempt := 1; ; attempt++ {
		text, err := j.gen.Generate(ctx, msgs)
		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				return marker(seg, "[Summary failed: empty response from model]"), retries, nil
			}
			return entryFor(seg, text), retries, nil
		}
		if ctx.Err() != nil {
			return types.SummaryEntry{}, retries, ctx.Err()
		}

		delay, limited := model.ClassifyRateLimit(err, j.opts.DefaultBackoff)
		if !limited {
			j.logger.Warn("summary.segment_failed", "hash", hash, "segment", seg.ID, "error", err)
			return marker(seg, fmt.Sprintf("[Summary failed: %v]", err)), retries, nil
		}
		if attempt >= j.opts.MaxAttempts {
			j.logger.Error("summary.rate_limit_exhausted", "hash", hash, "segment", seg.ID, "attempts", attempt)
			return marker(seg, fmt.Sprintf("[Summary unavailable: rate limited after %d attempts]", attempt)), retries, nil
		}

		j.checkpoint(hash, record)
		retries++
		j.logger.Warn("summary.rate_limited", "hash", hash, "segment", seg.ID, "attempt", attempt, "backoff", delay)
		if err := j.sleep(ctx, delay); err != nil {
			return types.SummaryEntry{}, retries, err
		}
	}
}

func (j *Job) interrupt(hash string, out *Outcome) *Outcome {
	j.checkpoint(hash, out.Record)
	out.Interrupted = true
	out.Complete = types.IsComplete(out.Record, out.Total)
	j.logger.Warn("summary.interrupted", "hash", hash, "count", len(out.Record), "total", out.Total)
	return out
}

// checkpoint persists record. Failures are logged and otherwise ignored.
func (j *Job) checkpoint(hash string, record types.SummaryRecord) {
	if err := j.store.SaveSummaries(hash, record); err != nil {
		j.logger.Warn("summary.checkpoint_failed", "hash", hash, "error", err)
		return
	}
	j.logger.Debug("summary.checkpoint", "hash", hash, "count", len(record))
}

func entryFor(seg types.Segment, summary string) types.SummaryEntry {
	return types.SummaryEntry{
		Summary: summary,
		Text:    seg.Text,
		Page:    seg.Page,
		BBox:    seg.BBox,
	}
}

func marker(seg types.Segment, text string) types.SummaryEntry {
	e := entryFor(seg, text)
	e.Failed = true
	return e
}
