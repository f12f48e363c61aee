// Package layout turns uploaded files into page text with inline HTML tables,
// ready for the section splitter.
package layout

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/markdave123-py/contexta-loader/internal/core/splitter"
)

var (
	ErrUnsupportedFormat = errors.New("layout: unsupported document format")
	ErrNoContent         = errors.New("layout: document has no extractable content")
)

// CellKind marks the role of a table cell.
type CellKind string

const (
	CellContent      CellKind = "content"
	CellColumnHeader CellKind = "columnHeader"
	CellRowHeader    CellKind = "rowHeader"
)

// Span is a character range in Result.Content.
type Span struct {
	Offset int
	Length int
}

// Page is one page of the analysed document. Number is zero-based.
type Page struct {
	Number int
	Span   Span
}

type Cell struct {
	RowIndex    int
	ColumnIndex int
	RowSpan     int
	ColumnSpan  int
	Kind        CellKind
	Content     string
}

// Table is a detected table. PageNumber is the zero-based page it starts on;
// Spans cover the characters of Content the table was read from.
type Table struct {
	PageNumber  int
	RowCount    int
	ColumnCount int
	Cells       []Cell
	Spans       []Span
}

// Result is the layout of one document.
type Result struct {
	Content string
	Pages   []Page
	Tables  []Table
}

// Analyzer extracts the layout of a document.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, fileName, contentType string) (*Result, error)
}

// BuildPageMap renders every page of the result as text, swapping the
// characters covered by a table for that table's HTML, and indexes the pages
// for the splitter. Each page gets a trailing space so words never fuse
// across a page break.
func BuildPageMap(res *Result) splitter.PageMap {
	if res == nil {
		return splitter.PageMap{}
	}
	content := []rune(res.Content)

	pages := make([]splitter.Page, 0, len(res.Pages))
	for _, p := range res.Pages {
		var onPage []Table
		for _, t := range res.Tables {
			if t.PageNumber == p.Number {
				onPage = append(onPage, t)
			}
		}

		pageOffset, pageLength := p.Span.Offset, p.Span.Length
		tableChars := make([]int, pageLength)
		for i := range tableChars {
			tableChars[i] = -1
		}
		for id, t := range onPage {
			for _, s := range t.Spans {
				for i := 0; i < s.Length; i++ {
					idx := s.Offset - pageOffset + i
					if idx >= 0 && idx < pageLength {
						tableChars[idx] = id
					}
				}
			}
		}

		var b strings.Builder
		added := make(map[int]bool, len(onPage))
		for idx, id := range tableChars {
			switch {
			case id == -1:
				if pos := pageOffset + idx; pos >= 0 && pos < len(content) {
					b.WriteRune(content[pos])
				}
			case !added[id]:
				b.WriteString(TableToHTML(onPage[id]))
				added[id] = true
			}
		}
		b.WriteByte(' ')

		pages = append(pages, splitter.Page{Number: p.Number, Text: norm.NFC.String(b.String())})
	}
	return splitter.FromPages(pages)
}

// pageBuilder accumulates page texts into a Result, tracking character offsets.
type pageBuilder struct {
	b      strings.Builder
	offset int
	res    Result
}

// add appends one page and returns the span it occupies.
func (pb *pageBuilder) add(text string) Span {
	n := len([]rune(text))
	span := Span{Offset: pb.offset, Length: n}
	pb.b.WriteString(text)
	pb.res.Pages = append(pb.res.Pages, Page{Number: len(pb.res.Pages), Span: span})
	pb.offset += n
	return span
}

func (pb *pageBuilder) result() *Result {
	pb.res.Content = pb.b.String()
	return &pb.res
}
