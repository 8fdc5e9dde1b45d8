package textbuf

// Op records one replacement applied to a text, in byte offsets of the text
// it was applied to.
type Op struct {
	Offset   int    `json:"offset"`
	Deleted  string `json:"deleted"`
	Inserted string `json:"inserted"`
}

// Bias decides which side of an insertion a coincident offset sticks to.
type Bias int

const (
	// BiasLeft keeps an offset before text inserted at the same point.
	BiasLeft Bias = iota
	// BiasRight moves an offset after text inserted at the same point.
	BiasRight
)

// End returns the offset just past the deleted text.
func (o Op) End() int { return o.Offset + len(o.Deleted) }

// Delta is the length change caused by the op.
func (o Op) Delta() int { return len(o.Inserted) - len(o.Deleted) }

// IsNoop reports whether applying o leaves the text unchanged.
func (o Op) IsNoop() bool { return o.Deleted == o.Inserted }

// Inverse returns the op that undoes o.
func (o Op) Inverse() Op {
	return Op{Offset: o.Offset, Deleted: o.Inserted, Inserted: o.Deleted}
}

// Apply returns text with o applied. Offsets are clamped to the text.
func (o Op) Apply(text string) string {
	start := clampOffset(o.Offset, len(text))
	end := clampOffset(o.End(), len(text))
	return text[:start] + o.Inserted + text[end:]
}

// MapOffset maps an offset in the text before o to the text after o.
// The second result is false when off fell strictly inside the replaced
// range; the returned offset is then the nearest boundary selected by bias.
func (o Op) MapOffset(off int, bias Bias) (int, bool) {
	end := o.End()
	switch {
	case off < o.Offset:
		return off, true
	case off > end:
		return off + o.Delta(), true
	case off == o.Offset && off == end:
		if bias == BiasLeft {
			return off, true
		}
		return off + len(o.Inserted), true
	case off == o.Offset:
		return off, true
	case off == end:
		return o.Offset + len(o.Inserted), true
	default:
		if bias == BiasLeft {
			return o.Offset, false
		}
		return o.Offset + len(o.Inserted), false
	}
}

func clampOffset(off, n int) int {
	if off < 0 {
		return 0
	}
	if off > n {
		return n
	}
	return off
}
