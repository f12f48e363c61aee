package layout

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXAnalyzer maps every worksheet to one page whose body is a single table.
// The first row is treated as the column header row.
type XLSXAnalyzer struct{}

func (XLSXAnalyzer) Analyze(ctx context.Context, data []byte, fileName, _ string) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", fileName, err)
	}
	defer f.Close()

	var pb pageBuilder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		merges, err := f.GetMergeCells(sheet)
		if err != nil {
			return nil, fmt.Errorf("read merged cells of %q: %w", sheet, err)
		}

		title := sheet + "\n"
		if len(rows) == 0 {
			pb.add(title)
			continue
		}

		var body strings.Builder
		for _, row := range rows {
			body.WriteString(strings.Join(row, "\t"))
			body.WriteByte('\n')
		}
		span := pb.add(title + body.String())
		titleLen := len([]rune(title))

		table := sheetTable(rows, merges)
		table.PageNumber = len(pb.res.Pages) - 1
		table.Spans = []Span{{Offset: span.Offset + titleLen, Length: span.Length - titleLen}}
		pb.res.Tables = append(pb.res.Tables, table)
	}
	if len(pb.res.Tables) == 0 {
		return nil, fmt.Errorf("xlsx %s: %w", fileName, ErrNoContent)
	}
	return pb.result(), nil
}

type cellPos struct{ row, col int }

func sheetTable(rows [][]string, merges []excelize.MergeCell) Table {
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}

	covered := map[cellPos]bool{}
	spans := map[cellPos]cellPos{}
	for _, m := range merges {
		c1, r1, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			continue
		}
		// excelize coordinates are one-based
		r1, c1, r2, c2 = r1-1, c1-1, r2-1, c2-1
		if r1 >= len(rows) {
			continue
		}
		spans[cellPos{r1, c1}] = cellPos{r2 - r1 + 1, c2 - c1 + 1}
		for r := r1; r <= r2; r++ {
			for c := c1; c <= c2; c++ {
				if r != r1 || c != c1 {
					covered[cellPos{r, c}] = true
				}
			}
		}
		cols = max(cols, c2+1)
	}

	t := Table{RowCount: len(rows), ColumnCount: cols}
	for r, row := range rows {
		for c := 0; c < cols; c++ {
			if covered[cellPos{r, c}] {
				continue
			}
			cell := Cell{RowIndex: r, ColumnIndex: c, RowSpan: 1, ColumnSpan: 1, Kind: CellContent}
			if c < len(row) {
				cell.Content = row[c]
			}
			if s, ok := spans[cellPos{r, c}]; ok {
				cell.RowSpan = min(s.row, len(rows)-r)
				cell.ColumnSpan = s.col
			}
			if r == 0 {
				cell.Kind = CellColumnHeader
			}
			t.Cells = append(t.Cells, cell)
		}
	}
	return t
}
