package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"docsum/types"
)

const (
	// MinTextLength drops page numbers, running headers and similar noise.
	MinTextLength = 10

	fingerprintRunes = 32
)

// Extract normalizes an analysis result into ordered segments.
func Extract(raw json.RawMessage) ([]types.Segment, error) {
	layout, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return layout.Segments(), nil
}

// candidate is an item before filtering and id assignment.
type candidate struct {
	sourceID string
	text     string
	page     int
	ordinal  int
	bbox     *types.BBox
	typ      string
}

// Segments runs the adapter for l's shape.
func (l *Layout) Segments() []types.Segment {
	var cands []candidate
	switch l.Shape {
	case ShapeFlat:
		cands = fromFlat(l.Items)
	case ShapePaged:
		cands = fromPages(l.Pages)
	}
	return finalize(cands)
}

func fromFlat(items []entry) []candidate {
	ordinals := make(map[int]int)
	out := make([]candidate, 0, len(items))
	for _, it := range items {
		p := int(it.PageNumber)
		out = append(out, candidate{
			sourceID: sourceID(it.ID),
			text:     it.Text,
			page:     p,
			ordinal:  ordinals[p],
			bbox:     it.box(),
			typ:      it.Type,
		})
		ordinals[p]++
	}
	return out
}

func fromPages(pages []page) []candidate {
	var out []candidate
	for i, pg := range pages {
		num := int(pg.PageNumber)
		if num == 0 {
			num = int(pg.Page)
		}
		if num == 0 {
			num = i + 1
		}

		list := pg.Texts
		if len(list) == 0 {
			list = pg.Items
		}
		for j, it := range list {
			out = append(out, candidate{
				sourceID: sourceID(it.ID),
				text:     it.Text,
				page:     num,
				ordinal:  j,
				bbox:     it.box(),
				typ:      it.Type,
			})
		}
	}
	return out
}

func finalize(cands []candidate) []types.Segment {
	seen := make(map[string]int, len(cands))
	out := make([]types.Segment, 0, len(cands))
	for _, c := range cands {
		text := strings.TrimSpace(c.text)
		if utf8.RuneCountInString(text) < MinTextLength {
			continue
		}

		id := c.sourceID
		if id == "" {
			id = DeterministicID(c.page, c.ordinal, text)
		}
		if n := seen[id]; n > 0 {
			seen[id]++
			id = fmt.Sprintf("%s-%d", id, n)
		} else {
			seen[id] = 1
		}

		typ := types.SegmentType(strings.ToLower(strings.TrimSpace(c.typ)))
		if typ == "" {
			typ = types.SegmentText
		}

		out = append(out, types.Segment{
			ID:   id,
			Text: text,
			Page: c.page,
			BBox: c.bbox,
			Type: typ,
		})
	}
	return out
}

// DeterministicID derives a stable id from page, position on the page and a
// fingerprint of the first characters of text.
func DeterministicID(page, ordinal int, text string) string {
	prefix := text
	if utf8.RuneCountInString(prefix) > fingerprintRunes {
		prefix = string([]rune(prefix)[:fingerprintRunes])
	}
	sum := sha256.Sum256([]byte(prefix))
	return fmt.Sprintf("p%d-%d-%s", page, ordinal, hex.EncodeToString(sum[:4]))
}

func sourceID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (e entry) box() *types.BBox {
	if e.Left != nil && e.Top != nil {
		b := &types.BBox{Left: *e.Left, Top: *e.Top}
		if e.Width != nil {
			b.Width = *e.Width
		}
		if e.Height != nil {
			b.Height = *e.Height
		}
		return b
	}
	if len(e.BBox) == 4 {
		return &types.BBox{
			Left:   e.BBox[0],
			Top:    e.BBox[1],
			Width:  e.BBox[2] - e.BBox[0],
			Height: e.BBox[3] - e.BBox[1],
		}
	}
	return nil
}
