package export

import (
	"cmp"
	"fmt"
	"slices"

	"docsum/types"

	"github.com/xuri/excelize/v2"
)

const sheet = "Summaries"

var headers = []string{"Segment", "Page", "Type", "Text", "Summary", "Failed"}

// SummariesXLSX renders record as a workbook. Rows follow the order of
// segments; entries without a matching segment come last, by page.
func SummariesXLSX(record types.SummaryRecord, segments []types.Segment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, id := range rowOrder(record, segments) {
		entry := record[id]
		typ := ""
		for _, s := range segments {
			if s.ID == id {
				typ = string(s.Type)
				break
			}
		}

		values := []any{id, entry.Page, typ, entry.Text, entry.Summary, entry.Failed}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 22)
	_ = f.SetColWidth(sheet, "B", "C", 8)
	_ = f.SetColWidth(sheet, "D", "E", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func rowOrder(record types.SummaryRecord, segments []types.Segment) []string {
	ids := make([]string, 0, len(record))
	seen := make(map[string]bool, len(record))
	for _, s := range segments {
		if _, ok := record[s.ID]; ok && !seen[s.ID] {
			ids = append(ids, s.ID)
			seen[s.ID] = true
		}
	}

	var rest []string
	for id := range record {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.SortFunc(rest, func(a, b string) int {
		if c := cmp.Compare(record[a].Page, record[b].Page); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return append(ids, rest...)
}
