package textbuf

// Surface is the editing surface that owns a document buffer. The engine
// mutates text only through it so the surface's undo history stays
// consistent; rendering of decorations belongs to the surface.
type Surface interface {
	// Text returns the full buffer text.
	Text() string
	// SetText replaces the whole buffer as one undoable edit.
	SetText(text string)
	// Replace replaces the live range r with text.
	Replace(r Range, text string)
	// Selection returns the user's current selection, if any.
	Selection() (Range, bool)
	// PushUndoStop closes the current undo group.
	PushUndoStop()
	// Decorate paints (or repaints) decoration id over r with a visual class.
	Decorate(id string, r Range, class string)
	// ClearDecoration removes decoration id.
	ClearDecoration(id string)
}

// ReplaceOffsets replaces the byte range [start, end) of the surface text and
// returns the op that was applied.
func ReplaceOffsets(s Surface, start, end int, text string) Op {
	cur := s.Text()
	start = clampOffset(start, len(cur))
	end = clampOffset(end, len(cur))
	if end < start {
		end = start
	}
	op := Op{Offset: start, Deleted: cur[start:end], Inserted: text}
	if op.IsNoop() {
		return op
	}
	s.Replace(Index(cur).Range(start, end), text)
	return op
}
