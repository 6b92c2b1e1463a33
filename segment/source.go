package segment

import (
	"encoding/json"
	"fmt"

	"docsum/types"
)

// AnalysisStore returns cached analysis JSON, or an error wrapping
// types.ErrNotFound.
type AnalysisStore interface {
	Get(hash string) (json.RawMessage, error)
}

// Source extracts segments for cached documents on demand.
type Source struct {
	store AnalysisStore
}

func NewSource(store AnalysisStore) *Source {
	return &Source{store: store}
}

// Segments loads the analysis for hash and extracts its segments.
func (s *Source) Segments(hash string) ([]types.Segment, error) {
	raw, err := s.store.Get(hash)
	if err != nil {
		return nil, err
	}
	segs, err := Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", hash, err)
	}
	return segs, nil
}
