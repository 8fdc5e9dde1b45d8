// Package edit defines the edit descriptors produced by the reasoning service
// and the normalizer that validates, clamps and orders them.
package edit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// Point is a 1-based position relative to the snapshot an edit was proposed
// against. It is deliberately a different type from textbuf.Pos: a Point
// never addresses the live buffer directly.
type Point struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Less orders points by (line, column).
func (p Point) Less(q Point) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

func (p Point) String() string {
	return fmt.Sprintf("L%dC%d", p.Line, p.Column)
}

func (p Point) clamp() Point {
	if p.Line < 1 {
		p.Line = 1
	}
	if p.Column < 1 {
		p.Column = 1
	}
	return p
}

// Edit replaces the half-open range [Start, End) with Text.
type Edit struct {
	Start Point  `json:"start"`
	End   Point  `json:"end"`
	Text  string `json:"text"`
}

// IsInsertion reports whether the edit is a pure insertion (Start == End).
func (e Edit) IsInsertion() bool {
	return e.Start == e.End
}

// IsDeletion reports whether the edit removes text without replacing it.
func (e Edit) IsDeletion() bool {
	return e.Text == "" && !e.IsInsertion()
}

// IsNoop reports whether the edit changes nothing.
func (e Edit) IsNoop() bool {
	return e.Text == "" && e.IsInsertion()
}

// Clamp returns e with coordinates clamped to >= 1 and Start <= End.
func (e Edit) Clamp() Edit {
	e.Start = e.Start.clamp()
	e.End = e.End.clamp()
	if e.End.Less(e.Start) {
		e.Start, e.End = e.End, e.Start
	}
	return e
}

func (e Edit) String() string {
	return fmt.Sprintf("[%s,%s) %q", e.Start, e.End, e.Text)
}

// Fingerprint returns the stable deduplication key for an edit of a run on a
// file. A retried or resumed stream re-sends identical edits, which then map
// to the same key.
func Fingerprint(runID, filePath string, e Edit) string {
	h := sha256.New()
	for _, part := range []string{
		runID,
		filePath,
		strconv.Itoa(e.Start.Line), strconv.Itoa(e.Start.Column),
		strconv.Itoa(e.End.Line), strconv.Itoa(e.End.Column),
		e.Text,
	} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Resolve converts e to byte offsets within the text indexed by lines. The
// lines must index the snapshot the edit was proposed against.
// Out-of-bounds coordinates are clamped to the nearest valid position.
func Resolve(e Edit, lines *textbuf.Lines) (start, end int) {
	start = lines.Offset(textbuf.Pos{Line: e.Start.Line, Column: e.Start.Column})
	end = lines.Offset(textbuf.Pos{Line: e.End.Line, Column: e.End.Column})
	if end < start {
		end = start
	}
	return start, end
}

// WholeText returns the edit replacing every character of the text indexed by
// lines with replacement.
func WholeText(lines *textbuf.Lines, replacement string) Edit {
	last := lines.Count()
	return Edit{
		Start: Point{Line: 1, Column: 1},
		End:   Point{Line: last, Column: lines.LineLength(last) + 1},
		Text:  replacement,
	}
}
