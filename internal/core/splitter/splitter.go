// Package splitter windows extracted document text into overlapping sections
// that break on sentence or word boundaries and keep rendered HTML tables whole
// whenever they fit in a single window.
package splitter

import (
	"errors"
	"fmt"
	"iter"
)

const (
	DefaultMaxSectionLength    = 1000
	DefaultSentenceSearchLimit = 100
	DefaultSectionOverlap      = 100
)

// ErrInvalidConfiguration is returned by Split before any section is produced
// when the tunables cannot make the window advance.
var ErrInvalidConfiguration = errors.New("splitter: invalid configuration")

var (
	tableOpen  = []rune("<table")
	tableClose = []rune("</table")
)

// Section is one emitted text window.
//
// Offset is the character position of Text inside the concatenated page text;
// PageNumber is the page owning that position.
type Section struct {
	Text       string
	PageNumber int
	Offset     int
}

// Options are the splitter tunables.
type Options struct {
	MaxSectionLength    int
	SentenceSearchLimit int
	SectionOverlap      int
}

// DefaultOptions returns the stock window sizes.
func DefaultOptions() Options {
	return Options{
		MaxSectionLength:    DefaultMaxSectionLength,
		SentenceSearchLimit: DefaultSentenceSearchLimit,
		SectionOverlap:      DefaultSectionOverlap,
	}
}

// Validate checks that the window always advances.
func (o Options) Validate() error {
	if o.SectionOverlap < 0 {
		return fmt.Errorf("%w: section overlap %d is negative", ErrInvalidConfiguration, o.SectionOverlap)
	}
	if o.MaxSectionLength <= 2*o.SectionOverlap {
		return fmt.Errorf("%w: max section length %d must exceed twice the overlap %d",
			ErrInvalidConfiguration, o.MaxSectionLength, o.SectionOverlap)
	}
	if o.SentenceSearchLimit < 0 {
		return fmt.Errorf("%w: sentence search limit %d is negative", ErrInvalidConfiguration, o.SentenceSearchLimit)
	}
	return nil
}

// Split returns the lazy sequence of sections for the page map. Nothing is
// computed until the sequence is ranged over, and every range starts again from
// the beginning of the document. Breaking out of the range early is safe.
func Split(pm PageMap, opts Options) (iter.Seq[Section], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(Section) bool) {
		w := window{text: pm.text, opts: opts}
		w.run(pm, yield)
	}, nil
}

// window holds the cursor state of a single traversal.
type window struct {
	text []rune
	opts Options
}

func (w *window) run(pm PageMap, yield func(Section) bool) {
	length := len(w.text)
	overlap := w.opts.SectionOverlap

	emit := func(start, end int) bool {
		return yield(Section{
			Text:       string(w.text[start:end]),
			PageNumber: pm.PageOf(start),
			Offset:     start,
		})
	}

	start, end := 0, length
	prevStart := -1
	emitted := false
	for start+overlap < length {
		prevEnd, carried := end, start
		end = w.sectionEnd(start)
		start = w.sectionStart(start, end)
		// The backward walk may not reach the previous section's start, or a
		// table restart would be retried forever.
		if emitted && start <= prevStart {
			start = carried
		}
		// Stepping past a terminator must not open a gap after the previous
		// section, which happens only when the overlap is zero.
		if emitted && start > prevEnd {
			start = prevEnd
		}
		if !emit(start, end) {
			return
		}
		// Anything still unread after a section reaching the end of the text is
		// already inside it, including an unclosed table.
		if end == length {
			return
		}
		emitted = true
		prevStart = start
		start = w.nextStart(start, end)
	}

	// A document no longer than the overlap never enters the loop; it still
	// gets one section so it is not silently dropped from the index.
	if start+overlap < end || (!emitted && length > 0) {
		emit(start, end)
	}
}

// sectionEnd finds the exclusive end of the window opened at start: the first
// sentence ending within the search limit past the nominal length, else the
// last word break seen while searching, else the hard cutoff.
func (w *window) sectionEnd(start int) int {
	length := len(w.text)
	maxLen := w.opts.MaxSectionLength
	limit := w.opts.SentenceSearchLimit

	end := start + maxLen
	if end > length {
		return length
	}

	lastWord := -1
	for end < length && end-start-maxLen < limit && !isSentenceEnding(w.text[end]) {
		if isWordBreak(w.text[end]) {
			lastWord = end
		}
		end++
	}
	if end < length && !isSentenceEnding(w.text[end]) && lastWord > 0 {
		end = lastWord
	}
	if end < length {
		end++
	}
	return end
}

// sectionStart walks start backwards, bounded by the search window, so the
// section begins right after a sentence ending or at least on a word break.
func (w *window) sectionStart(start, end int) int {
	bound := end - w.opts.MaxSectionLength - 2*w.opts.SentenceSearchLimit

	lastWord := -1
	for start > 0 && start > bound && !isSentenceEnding(w.text[start]) {
		if isWordBreak(w.text[start]) {
			lastWord = start
		}
		start--
	}
	if !isSentenceEnding(w.text[start]) && lastWord > 0 {
		start = lastWord
	}
	if start > 0 {
		start++
	}
	return start
}

// nextStart advances the cursor. A section ending inside a table that opened
// past twice the search limit restarts at that table so it is not cut in two;
// tables opening closer to the section start are left alone, otherwise a table
// longer than the maximum length would be retried forever.
func (w *window) nextStart(start, end int) int {
	next := end - w.opts.SectionOverlap
	section := w.text[start:end]
	t := lastIndex(section, tableOpen)
	if t > 2*w.opts.SentenceSearchLimit && t > lastIndex(section, tableClose) {
		return min(next, start+t)
	}
	return next
}

func isSentenceEnding(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}

func isWordBreak(r rune) bool {
	switch r {
	case ',', ';', ':', ' ', '(', ')', '[', ']', '{', '}', '\t', '\n':
		return true
	}
	return false
}

// lastIndex is strings.LastIndex over runes, so the result is a character offset.
func lastIndex(s, sub []rune) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
