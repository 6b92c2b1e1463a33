package store

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"docsum/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder scores texts on a fixed vocabulary.
type keywordEmbedder struct {
	vocab []string
	calls atomic.Int32
}

func (e *keywordEmbedder) vec(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(e.vocab))
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(text, w))
	}
	return v
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vec(text), nil
}

func TestSplit(t *testing.T) {
	segs := []types.Segment{
		{ID: "a", Text: "one two three four five six seven", Page: 1, Type: types.SegmentText},
		{ID: "b", Text: "short title", Page: 2, Type: types.SegmentTitle},
	}

	chunks := Split(segs, 4, 1)
	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].ID)
	assert.Equal(t, "one two three four", chunks[0].Content)
	assert.Equal(t, "a#1", chunks[1].ID)
	assert.Equal(t, "four five six seven", chunks[1].Content)
	assert.Equal(t, "a", chunks[1].SegmentID)
	assert.Equal(t, "b", chunks[2].ID)
	assert.Equal(t, 2, chunks[2].Position)
	assert.Equal(t, "title", chunks[2].Type)
	assert.Equal(t, 2, chunks[2].Page)
}

func TestSplit_BadOverlap(t *testing.T) {
	segs := []types.Segment{{ID: "a", Text: "w1 w2 w3 w4 w5", Page: 1}}
	chunks := Split(segs, 2, 5)
	require.Len(t, chunks, 3)
	assert.Equal(t, "w5", chunks[2].Content)
}

func TestMemory_Search(t *testing.T) {
	e := &keywordEmbedder{vocab: []string{"revenue", "hiring", "office"}}
	idx := NewMemory(e)
	chunks := []Chunk{
		{ID: "s1", SegmentID: "s1", Page: 1, Type: "text", Content: "Revenue grew and revenue targets were met"},
		{ID: "s2", SegmentID: "s2", Page: 2, Type: "text", Content: "Hiring slowed in the second half"},
		{ID: "s3", SegmentID: "s3", Page: 3, Type: "text", Content: "The office moved downtown"},
	}
	require.NoError(t, idx.Build(context.Background(), "doc", chunks))

	hits, err := idx.Search(context.Background(), "doc", "what happened to revenue?", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "s1", hits[0].SegmentID)
	assert.Equal(t, "doc", hits[0].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, 1, hits[0].Page)
}

func TestMemory_BuildIdempotent(t *testing.T) {
	e := &keywordEmbedder{vocab: []string{"x"}}
	idx := NewMemory(e)
	chunks := []Chunk{{ID: "s1", Content: "x"}}

	require.NoError(t, idx.Build(context.Background(), "doc", chunks))
	require.NoError(t, idx.Build(context.Background(), "doc", chunks))
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestMemory_UnknownDocument(t *testing.T) {
	idx := NewMemory(&keywordEmbedder{})
	hits, err := idx.Search(context.Background(), "missing", "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestChunkUUIDStable(t *testing.T) {
	assert.Equal(t, chunkUUID("h", "s1"), chunkUUID("h", "s1"))
	assert.NotEqual(t, chunkUUID("h", "s1"), chunkUUID("h", "s1#1"))
	assert.Equal(t, "docsum-0123456789abcdef0123456789abcdef", collectionName("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
}
