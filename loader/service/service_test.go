package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docsum/analysis"
	"docsum/loader/internal"
	"docsum/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeIngest struct {
	err   error
	names []string
}

func (f *fakeIngest) Ingest(_ context.Context, data []byte, filename string) (*analysis.Result, error) {
	f.names = append(f.names, filename)
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.Result{Hash: fmt.Sprintf("%064x", len(data))}, nil
}

type fakeSummaries struct {
	hashes []string
}

func (f *fakeSummaries) Summarize(_ context.Context, hash string, _ types.SummaryParams) (*types.SummaryResponse, error) {
	f.hashes = append(f.hashes, hash)
	return &types.SummaryResponse{Hash: hash, Status: types.StatusComplete}, nil
}

type dirs struct {
	inbox, archive, bad string
}

func setup(t *testing.T) (*internal.Inbox, dirs) {
	t.Helper()
	root := t.TempDir()
	d := dirs{
		inbox:   filepath.Join(root, "inbox"),
		archive: filepath.Join(root, "archive"),
		bad:     filepath.Join(root, "bad"),
	}
	in, err := internal.NewInbox(internal.Config{
		SourceDir: d.inbox, ArchiveDir: d.archive, BadDir: d.bad, SettleTime: time.Second,
	}, discard)
	require.NoError(t, err)
	return in, d
}

func drop(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.7"), 0644))
	return p
}

func TestProcess_Archives(t *testing.T) {
	in, d := setup(t)
	ingest := &fakeIngest{}
	sums := &fakeSummaries{}
	path := drop(t, d.inbox, "plan.pdf")

	New(in, ingest, sums, discard).Process(context.Background(), path)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(d.archive, time.Now().Format("2006-01-02"), "plan.pdf"))
	assert.Equal(t, []string{"plan.pdf"}, ingest.names)
	assert.Len(t, sums.hashes, 1)
}

func TestProcess_Rejected(t *testing.T) {
	in, d := setup(t)
	ingest := &fakeIngest{err: fmt.Errorf("%w: only .pdf files are accepted", types.ErrInput)}
	path := drop(t, d.inbox, "notes.txt")

	New(in, ingest, nil, discard).Process(context.Background(), path)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(d.bad, time.Now().Format("2006-01-02"), "notes.txt"))
}

func TestProcess_RetryLater(t *testing.T) {
	in, d := setup(t)
	ingest := &fakeIngest{err: &analysis.TransportError{Err: fmt.Errorf("connection refused")}}
	sums := &fakeSummaries{}
	path := drop(t, d.inbox, "plan.pdf")

	New(in, ingest, sums, discard).Process(context.Background(), path)

	assert.FileExists(t, path)
	assert.Empty(t, sums.hashes)
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(types.ErrInput))
	assert.False(t, retryable(&analysis.ServiceError{Status: 422}))
	assert.False(t, retryable(&analysis.ServiceError{Status: 502}))
	assert.True(t, retryable(&analysis.ServiceError{Status: 503}))
	assert.True(t, retryable(types.ErrUpstreamTimeout))
}
