package layout

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TableToHTML renders a table as compact HTML. Header cells become <th>, spans
// larger than one are kept as colSpan/rowSpan, cell text is escaped.
func TableToHTML(t Table) string {
	table := element(atom.Table)
	for r := 0; r < t.RowCount; r++ {
		var row []Cell
		for _, c := range t.Cells {
			if c.RowIndex == r {
				row = append(row, c)
			}
		}
		slices.SortStableFunc(row, func(a, b Cell) int { return cmp.Compare(a.ColumnIndex, b.ColumnIndex) })

		tr := element(atom.Tr)
		for _, c := range row {
			tag := atom.Td
			if c.Kind == CellColumnHeader || c.Kind == CellRowHeader {
				tag = atom.Th
			}
			cell := element(tag)
			if c.ColumnSpan > 1 {
				cell.Attr = append(cell.Attr, html.Attribute{Key: "colSpan", Val: strconv.Itoa(c.ColumnSpan)})
			}
			if c.RowSpan > 1 {
				cell.Attr = append(cell.Attr, html.Attribute{Key: "rowSpan", Val: strconv.Itoa(c.RowSpan)})
			}
			if c.Content != "" {
				cell.AppendChild(&html.Node{Type: html.TextNode, Data: c.Content})
			}
			tr.AppendChild(cell)
		}
		table.AppendChild(tr)
	}

	var b strings.Builder
	if err := html.Render(&b, table); err != nil {
		return ""
	}
	return b.String()
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}
