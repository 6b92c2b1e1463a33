package store

import (
	"context"

	"docsum/types"
)

// Chunk is one indexed piece of a segment.
type Chunk struct {
	ID        string
	SegmentID string
	Position  int
	Page      int
	Type      string
	Content   string
}

// Index is the similarity-search collaborator. Build is idempotent per
// document; a second call for an indexed document does nothing.
type Index interface {
	Build(ctx context.Context, docID string, chunks []Chunk) error
	Search(ctx context.Context, docID, query string, k int) ([]types.Hit, error)
}

func hit(docID string, c Chunk, score float64) types.Hit {
	return types.Hit{
		DocumentID: docID,
		SegmentID:  c.SegmentID,
		Text:       c.Content,
		Page:       c.Page,
		Type:       types.SegmentType(c.Type),
		Score:      score,
	}
}

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
