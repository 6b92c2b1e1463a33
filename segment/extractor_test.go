package segment

import (
	"encoding/json"
	"errors"
	"testing"

	"docsum/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatDoc = `[
  {"left": 72, "top": 40, "width": 300, "height": 12, "page_number": 1, "page_width": 612, "page_height": 792, "text": "Annual Report 2023", "type": "Title"},
  {"left": 300, "top": 770, "width": 10, "height": 8, "page_number": 1, "text": "1", "type": "Page footer"},
  {"left": 72, "top": 80, "width": 460, "height": 60, "page_number": 1, "text": "  Revenue increased by twelve percent year over year.  ", "type": "Text"},
  {"left": 72, "top": 60, "width": 460, "height": 60, "page_number": 2, "text": "Operating costs were flat compared to last year.", "type": "Text"}
]`

func TestExtract_Flat(t *testing.T) {
	segs, err := Extract(json.RawMessage(flatDoc))
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, "Annual Report 2023", segs[0].Text)
	assert.Equal(t, types.SegmentTitle, segs[0].Type)
	assert.Equal(t, &types.BBox{Left: 72, Top: 40, Width: 300, Height: 12}, segs[0].BBox)

	assert.Equal(t, "Revenue increased by twelve percent year over year.", segs[1].Text)
	assert.Equal(t, 1, segs[1].Page)
	assert.Equal(t, DeterministicID(1, 2, segs[1].Text), segs[1].ID)

	assert.Equal(t, 2, segs[2].Page)
	assert.Equal(t, DeterministicID(2, 0, segs[2].Text), segs[2].ID)
}

func TestExtract_Deterministic(t *testing.T) {
	a, err := Extract(json.RawMessage(flatDoc))
	require.NoError(t, err)
	b, err := Extract(json.RawMessage(flatDoc))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExtract_PagedTexts(t *testing.T) {
	doc := `{"pages": [
	  {"page_number": 1, "texts": ["Introduction to the method", "p.1", {"id": "t-9", "text": "A second paragraph with detail"}]},
	  {"texts": ["Results on the held-out set"]}
	]}`
	segs, err := Extract(json.RawMessage(doc))
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, DeterministicID(1, 0, "Introduction to the method"), segs[0].ID)
	assert.Equal(t, "t-9", segs[1].ID)
	assert.Equal(t, 2, segs[2].Page)
	assert.Equal(t, types.SegmentText, segs[2].Type)
}

func TestExtract_PagedItems(t *testing.T) {
	doc := `{"pages": [
	  {"page_number": "3", "items": [
	    {"id": 17, "text": "Table 2 summarizes the cohort", "type": "table", "bbox": [10, 20, 110, 70]},
	    {"id": 17, "text": "Duplicate id should stay unique"}
	  ]}
	]}`
	segs, err := Extract(json.RawMessage(doc))
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "17", segs[0].ID)
	assert.Equal(t, "17-1", segs[1].ID)
	assert.Equal(t, 3, segs[0].Page)
	assert.Equal(t, types.SegmentTable, segs[0].Type)
	assert.Equal(t, &types.BBox{Left: 10, Top: 20, Width: 100, Height: 50}, segs[0].BBox)
}

func TestExtract_UnknownShapes(t *testing.T) {
	cases := []string{
		``,
		`"text"`,
		`{"document": {"md_content": "x"}}`,
		`{"pages": [{"page_number": 1}]}`,
		`[1, 2, 3]`,
		`[{"text": 42}]`,
		`{not json`,
	}
	for _, doc := range cases {
		_, err := Extract(json.RawMessage(doc))
		assert.True(t, errors.Is(err, ErrUnknownShape), "doc %q", doc)
	}
}

func TestParse_Shape(t *testing.T) {
	l, err := Parse(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Equal(t, ShapeFlat, l.Shape)
	assert.Empty(t, l.Segments())

	l, err = Parse(json.RawMessage(`{"pages": [{"items": []}]}`))
	require.NoError(t, err)
	assert.Equal(t, "paged", l.Shape.String())
}

func TestDeterministicID_UsesPrefixOnly(t *testing.T) {
	base := "The first thirty-two characters match exactly"
	a := DeterministicID(4, 1, base+" and then one ending")
	b := DeterministicID(4, 1, base+" and then another")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DeterministicID(4, 2, base))
}
