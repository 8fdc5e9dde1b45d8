package textbuf

import (
	"sort"
)

// Decoration is a visual marker painted over a live range.
type Decoration struct {
	ID    string `json:"id"`
	Range Range  `json:"range"`
	Class string `json:"class"`
}

// Buffer is an in-memory Surface. Edits between two undo stops form one undo
// group. Buffer is not safe for concurrent use; the owning document
// serializes access.
type Buffer struct {
	text        string
	selection   *Range
	open        []Op
	undo        [][]Op
	redo        [][]Op
	decorations map[string]Decoration
	version     int
}

var _ Surface = (*Buffer)(nil)

// NewBuffer creates a buffer holding text.
func NewBuffer(text string) *Buffer {
	return &Buffer{
		text:        text,
		decorations: make(map[string]Decoration),
	}
}

// Text returns the buffer text.
func (b *Buffer) Text() string { return b.text }

// Version increments on every text mutation.
func (b *Buffer) Version() int { return b.version }

// SetText replaces the whole buffer as one undoable edit.
func (b *Buffer) SetText(text string) {
	b.apply(Op{Offset: 0, Deleted: b.text, Inserted: text})
}

// Replace replaces the live range r with text.
func (b *Buffer) Replace(r Range, text string) {
	lines := Index(b.text)
	start, end := lines.Offset(r.Start), lines.Offset(r.End)
	if end < start {
		start, end = end, start
	}
	b.apply(Op{Offset: start, Deleted: b.text[start:end], Inserted: text})
}

func (b *Buffer) apply(op Op) {
	if op.IsNoop() {
		return
	}
	b.text = op.Apply(b.text)
	b.open = append(b.open, op)
	b.redo = nil
	b.version++
}

// Selection returns the current selection.
func (b *Buffer) Selection() (Range, bool) {
	if b.selection == nil {
		return Range{}, false
	}
	return *b.selection, true
}

// SetSelection sets the user's selection.
func (b *Buffer) SetSelection(r Range) {
	b.selection = &r
}

// ClearSelection removes the selection.
func (b *Buffer) ClearSelection() {
	b.selection = nil
}

// PushUndoStop closes the current undo group.
func (b *Buffer) PushUndoStop() {
	if len(b.open) == 0 {
		return
	}
	b.undo = append(b.undo, b.open)
	b.open = nil
}

// CanUndo reports whether there is anything to undo.
func (b *Buffer) CanUndo() bool {
	return len(b.open) > 0 || len(b.undo) > 0
}

// CanRedo reports whether there is anything to redo.
func (b *Buffer) CanRedo() bool {
	return len(b.redo) > 0
}

// UndoDepth returns the number of undo groups, counting an open group.
func (b *Buffer) UndoDepth() int {
	n := len(b.undo)
	if len(b.open) > 0 {
		n++
	}
	return n
}

// Undo reverts the last undo group and returns the ops it applied, in order.
func (b *Buffer) Undo() []Op {
	b.PushUndoStop()
	if len(b.undo) == 0 {
		return nil
	}
	group := b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]

	applied := make([]Op, 0, len(group))
	for i := len(group) - 1; i >= 0; i-- {
		inv := group[i].Inverse()
		b.text = inv.Apply(b.text)
		applied = append(applied, inv)
	}
	b.redo = append(b.redo, group)
	b.version++
	return applied
}

// Redo re-applies the last undone group and returns the ops it applied.
func (b *Buffer) Redo() []Op {
	if len(b.redo) == 0 {
		return nil
	}
	group := b.redo[len(b.redo)-1]
	b.redo = b.redo[:len(b.redo)-1]
	for _, op := range group {
		b.text = op.Apply(b.text)
	}
	b.undo = append(b.undo, group)
	b.version++
	return append([]Op(nil), group...)
}

// Decorate paints decoration id over r.
func (b *Buffer) Decorate(id string, r Range, class string) {
	b.decorations[id] = Decoration{ID: id, Range: r, Class: class}
}

// ClearDecoration removes decoration id.
func (b *Buffer) ClearDecoration(id string) {
	delete(b.decorations, id)
}

// Decorations returns the painted decorations ordered by position, then id.
func (b *Buffer) Decorations() []Decoration {
	out := make([]Decoration, 0, len(b.decorations))
	for _, d := range b.decorations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.Start != out[j].Range.Start {
			return out[i].Range.Start.Before(out[j].Range.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
