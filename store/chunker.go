package store

import (
	"fmt"
	"strings"

	"docsum/types"
)

// Split turns segments into index chunks. Segments longer than size words
// are cut into windows of size words overlapping by overlap words.
func Split(segments []types.Segment, size, overlap int) []Chunk {
	if size <= 0 {
		size = 180
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	position := 0
	for _, seg := range segments {
		words := strings.Fields(seg.Text)
		if len(words) == 0 {
			continue
		}

		part := 0
		for i := 0; i < len(words); i += size - overlap {
			end := min(i+size, len(words))

			id := seg.ID
			if part > 0 {
				id = fmt.Sprintf("%s#%d", seg.ID, part)
			}
			chunks = append(chunks, Chunk{
				ID:        id,
				SegmentID: seg.ID,
				Position:  position,
				Page:      seg.Page,
				Type:      string(seg.Type),
				Content:   strings.Join(words[i:end], " "),
			})
			position++
			part++

			if end == len(words) {
				break
			}
		}
	}
	return chunks
}
