package splitter

import "sort"

// Page is one record of a PageMap.
//
// Number: zero-based page number as reported by the layout extractor.
// Offset: position of the page's first character inside the concatenated text.
// Text:   page text with tables already rendered inline as HTML.
type Page struct {
	Number int
	Offset int
	Text   string
}

// PageMap is the immutable, ordered page index of one document.
// Offsets and lengths are counted in characters (runes), not bytes.
type PageMap struct {
	pages []Page
	text  []rune
}

// NewPageMap builds a PageMap from page texts in order, numbering pages from zero.
func NewPageMap(texts ...string) PageMap {
	pages := make([]Page, 0, len(texts))
	for i, t := range texts {
		pages = append(pages, Page{Number: i, Text: t})
	}
	return FromPages(pages)
}

// FromPages builds a PageMap from pre-numbered pages. Offsets on the input are
// ignored and recomputed from the page texts so the cumulative invariant holds.
func FromPages(in []Page) PageMap {
	pages := make([]Page, len(in))
	var text []rune
	for i, p := range in {
		runes := []rune(p.Text)
		pages[i] = Page{Number: p.Number, Offset: len(text), Text: p.Text}
		text = append(text, runes...)
	}
	return PageMap{pages: pages, text: text}
}

// Pages returns a copy of the page records.
func (m PageMap) Pages() []Page {
	out := make([]Page, len(m.pages))
	copy(out, m.pages)
	return out
}

// Len is the length of the concatenated text in characters.
func (m PageMap) Len() int { return len(m.text) }

// Empty reports whether the map holds no text at all.
func (m PageMap) Empty() bool { return len(m.text) == 0 }

// Text returns the concatenated text of all pages.
func (m PageMap) Text() string { return string(m.text) }

// PageOf maps an absolute character offset back to the owning page number.
// Offsets at or beyond the last page's offset belong to the last page.
func (m PageMap) PageOf(offset int) int {
	if len(m.pages) == 0 {
		return 0
	}
	// first page whose offset is past the position, minus one
	i := sort.Search(len(m.pages), func(i int) bool {
		return m.pages[i].Offset > offset
	}) - 1
	if i < 0 {
		i = 0
	}
	return m.pages[i].Number
}
