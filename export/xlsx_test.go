package export

import (
	"bytes"
	"testing"

	"docsum/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSummariesXLSX(t *testing.T) {
	segments := []types.Segment{
		{ID: "p1-0-aa", Page: 1, Type: types.SegmentTitle, Text: "Annual report 2025"},
		{ID: "p1-1-bb", Page: 1, Type: types.SegmentText, Text: "Revenue grew by ten percent."},
	}
	record := types.SummaryRecord{
		"p1-1-bb": {Summary: "Revenue up 10%.", Text: "Revenue grew by ten percent.", Page: 1},
		"p1-0-aa": {Summary: "Report title.", Text: "Annual report 2025", Page: 1},
		"orphan":  {Summary: "[Summary failed: boom]", Text: "Left over", Page: 3, Failed: true},
	}

	data, err := SummariesXLSX(record, segments)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"p1-0-aa", "1", "title", "Annual report 2025", "Report title.", "FALSE"}, rows[1])
	assert.Equal(t, "p1-1-bb", rows[2][0])
	assert.Equal(t, "orphan", rows[3][0])
	assert.Equal(t, "TRUE", rows[3][5])
}

func TestSummariesXLSX_Empty(t *testing.T) {
	data, err := SummariesXLSX(types.SummaryRecord{}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
