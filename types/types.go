package types

import (
	"encoding/json"
	"time"
)

// BBox is the position of a segment on its page, in points.
type BBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentTitle SegmentType = "title"
	SegmentTable SegmentType = "table"
)

// Segment is the minimal addressable unit of extracted document text.
type Segment struct {
	ID   string      `json:"id"`
	Text string      `json:"text"`
	Page int         `json:"page"`
	BBox *BBox       `json:"bbox,omitempty"`
	Type SegmentType `json:"type"`
}

// SummaryEntry is one summarized segment. Failed segments carry a marker summary
// and Failed=true so they still count as processed.
type SummaryEntry struct {
	Summary string `json:"summary"`
	Text    string `json:"text"`
	Page    int    `json:"page"`
	BBox    *BBox  `json:"bbox,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
}

// SummaryRecord maps segment id to its summary. It only ever grows.
type SummaryRecord map[string]SummaryEntry

type JobStatus string

const (
	StatusNotStarted JobStatus = "not_started"
	StatusInProgress JobStatus = "in_progress"
	StatusComplete   JobStatus = "complete"
	StatusFailed     JobStatus = "failed"
)

// JobState is derived from the checkpoint files, never stored on its own.
type JobState struct {
	Hash      string    `json:"hash"`
	Status    JobStatus `json:"status"`
	Count     int       `json:"count"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	Running   bool      `json:"running"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsComplete reports whether every known segment has an entry. A negative
// total means the segment count has not been recorded yet.
func IsComplete(record SummaryRecord, total int) bool {
	return total >= 0 && len(record) >= total
}

// Hit is a retrieved chunk with the metadata of the segment it came from.
type Hit struct {
	DocumentID string      `json:"document_id"`
	SegmentID  string      `json:"segment_id"`
	Text       string      `json:"text"`
	Page       int         `json:"page"`
	Type       SegmentType `json:"type"`
	Score      float64     `json:"score"`
}

type AnalyzeResponse struct {
	Hash     string          `json:"hash"`
	Filename string          `json:"filename"`
	Cached   bool            `json:"cached"`
	Pages    int             `json:"pages,omitempty"`
	Result   json.RawMessage `json:"result"`
}

type SummaryResponse struct {
	Hash      string        `json:"hash"`
	Status    JobStatus     `json:"status"`
	Count     int           `json:"count"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
	Partial   bool          `json:"partial"`
	Summaries SummaryRecord `json:"summaries"`
}

type ChatResponse struct {
	Response  string    `json:"response"`
	Sources   []Source  `json:"sources"`
	Fallback  bool      `json:"fallback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Source struct {
	ContentPreview string         `json:"content_preview"`
	Metadata       SourceMetadata `json:"metadata"`
}

type SourceMetadata struct {
	DocumentID string      `json:"document_id"`
	SegmentID  string      `json:"segment_id"`
	Page       int         `json:"page"`
	Type       SegmentType `json:"type"`
	Score      float64     `json:"score"`
}
