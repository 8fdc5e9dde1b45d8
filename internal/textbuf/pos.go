// Package textbuf provides the live text buffer used by the editing surface:
// positions, offset operations, the Surface collaborator contract and an
// in-memory implementation with grouped undo.
package textbuf

import (
	"fmt"
	"sort"
)

// Pos is a 1-based position in the live buffer.
//
// Pos values are only meaningful against the buffer text they were taken
// from. Coordinates relative to a run snapshot use edit.Point instead.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p sorts before q.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

// Range is a half-open live range [Start, End).
type Range struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// IsEmpty reports whether the range is a single point.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%s,%s)", r.Start, r.End)
}

// Lines indexes the line starts of a text so positions and byte offsets can
// be converted in both directions.
type Lines struct {
	text   string
	starts []int
}

// Index builds a line index for text.
func Index(text string) *Lines {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{text: text, starts: starts}
}

// Text returns the indexed text.
func (l *Lines) Text() string { return l.text }

// Count returns the number of lines. A trailing newline opens an empty last line.
func (l *Lines) Count() int { return len(l.starts) }

// LineLength returns the length of line (1-based) excluding its terminator.
func (l *Lines) LineLength(line int) int {
	if line < 1 || line > len(l.starts) {
		return 0
	}
	start := l.starts[line-1]
	end := len(l.text)
	if line < len(l.starts) {
		end = l.starts[line] - 1
	}
	if end > start && l.text[end-1] == '\r' {
		end--
	}
	return end - start
}

// Clamp returns the nearest valid position to p.
func (l *Lines) Clamp(p Pos) Pos {
	if p.Line < 1 {
		return Pos{Line: 1, Column: 1}
	}
	if p.Line > len(l.starts) {
		last := len(l.starts)
		return Pos{Line: last, Column: l.LineLength(last) + 1}
	}
	if p.Column < 1 {
		p.Column = 1
	}
	if limit := l.LineLength(p.Line) + 1; p.Column > limit {
		p.Column = limit
	}
	return p
}

// Offset converts a position to a byte offset, clamping out-of-range values.
func (l *Lines) Offset(p Pos) int {
	p = l.Clamp(p)
	return l.starts[p.Line-1] + p.Column - 1
}

// Pos converts a byte offset to a position, clamping to the text bounds.
func (l *Lines) Pos(offset int) Pos {
	if offset < 0 {
		offset = 0
	}
	if offset > len(l.text) {
		offset = len(l.text)
	}
	line := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
	return Pos{Line: line, Column: offset - l.starts[line-1] + 1}
}

// Range converts a pair of offsets to a live range.
func (l *Lines) Range(start, end int) Range {
	return Range{Start: l.Pos(start), End: l.Pos(end)}
}

// Slice returns the lines first..last (inclusive, 1-based, clamped) without
// their terminators.
func (l *Lines) Slice(first, last int) []string {
	if first < 1 {
		first = 1
	}
	if last > len(l.starts) {
		last = len(l.starts)
	}
	if first > last {
		return nil
	}
	out := make([]string, 0, last-first+1)
	for line := first; line <= last; line++ {
		start := l.starts[line-1]
		out = append(out, l.text[start:start+l.LineLength(line)])
	}
	return out
}
