package layout

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/tables"
)

// withTempFile hands data to fn as a file path. tabula's readers only open
// files by name.
func withTempFile(data []byte, pattern string, fn func(path string) error) error {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fn(f.Name())
}

// detectPDFTables runs tabula's geometric detector over the positioned text of
// every page, keyed by zero-based page number.
func detectPDFTables(ctx context.Context, path string) (found map[int][]*model.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("detect tables: %v", r)
		}
	}()

	r, err := reader.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	n, err := r.PageCount()
	if err != nil {
		return nil, err
	}
	detector := tables.NewGeometricDetector()
	found = make(map[int][]*model.Table)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		frags, err := r.ExtractTextFragments(page)
		if err != nil {
			return nil, fmt.Errorf("page %d text: %w", i, err)
		}
		if len(frags) == 0 {
			continue
		}

		w, _ := page.Width()
		h, _ := page.Height()
		mp := model.NewPage(w, h)
		for _, f := range frags {
			mp.RawText = append(mp.RawText, model.TextFragment{
				Text:     f.Text,
				BBox:     model.NewBBox(f.X, f.Y, f.Width, f.Height),
				FontSize: f.FontSize,
				FontName: f.FontName,
			})
		}
		tbls, err := detector.Detect(mp)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if len(tbls) > 0 {
			found[i] = tbls
		}
	}
	return found, nil
}

// placeTables converts the tables found on each page and anchors them in the
// page text, in order. A table whose cell text cannot be found on its page is
// left out: without a span there is nothing for it to replace.
func placeTables(res *Result, found map[int][]*model.Table) {
	content := []rune(res.Content)
	for _, p := range res.Pages {
		tbls := found[p.Number]
		if len(tbls) == 0 {
			continue
		}
		end := min(p.Span.Offset+p.Span.Length, len(content))
		pageText := content[p.Span.Offset:end]

		from := 0
		for _, t := range tbls {
			table, ok := fromTabula(t, p.Number)
			if !ok {
				continue
			}
			span, ok := locateTable(pageText, cellTexts(table), from)
			if !ok {
				continue
			}
			from = span.Offset + span.Length
			span.Offset += p.Span.Offset
			table.Spans = []Span{span}
			res.Tables = append(res.Tables, table)
		}
	}
}

// fromTabula maps a tabula table onto the layout model. tabula leaves the
// grid slots hidden under a merged cell as blank one-by-one cells, so they are
// tracked and skipped. Tables without any text are rejected.
func fromTabula(t *model.Table, page int) (Table, bool) {
	rows := len(t.Rows)
	cols := 0
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	out := Table{PageNumber: page, RowCount: rows, ColumnCount: cols}

	covered := map[cellPos]bool{}
	hasText := false
	for r, row := range t.Rows {
		for c, cell := range row {
			if covered[cellPos{r, c}] {
				continue
			}
			rs := min(max(cell.RowSpan, 1), rows-r)
			cs := min(max(cell.ColSpan, 1), cols-c)
			for dr := 0; dr < rs; dr++ {
				for dc := 0; dc < cs; dc++ {
					covered[cellPos{r + dr, c + dc}] = true
				}
			}

			kind := CellContent
			if cell.IsHeader {
				kind = CellColumnHeader
			}
			text := strings.TrimSpace(cell.Text)
			hasText = hasText || text != ""
			out.Cells = append(out.Cells, Cell{
				RowIndex:    r,
				ColumnIndex: c,
				RowSpan:     rs,
				ColumnSpan:  cs,
				Kind:        kind,
				Content:     text,
			})
		}
	}
	return out, hasText
}

func cellTexts(t Table) []string {
	out := make([]string, 0, len(t.Cells))
	for _, c := range t.Cells {
		if c.Content != "" {
			out = append(out, c.Content)
		}
	}
	return out
}

// locateTable finds the stretch of text, at or after rune index from, that
// holds the given cell texts back to back in reading order. Whitespace is
// ignored on both sides since extractors disagree on cell separators. The span
// runs from the first character of the first cell to the last of the final one.
func locateTable(text []rune, cells []string, from int) (Span, bool) {
	var needle []rune
	for _, c := range cells {
		for _, r := range c {
			if !unicode.IsSpace(r) {
				needle = append(needle, r)
			}
		}
	}
	if len(needle) == 0 || from < 0 {
		return Span{}, false
	}

	var hay []rune
	var pos []int
	for i := from; i < len(text); i++ {
		if !unicode.IsSpace(text[i]) {
			hay = append(hay, text[i])
			pos = append(pos, i)
		}
	}

	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j, r := range needle {
			if hay[i+j] != r {
				match = false
				break
			}
		}
		if match {
			first, last := pos[i], pos[i+len(needle)-1]
			return Span{Offset: first, Length: last - first + 1}, true
		}
	}
	return Span{}, false
}
