package textbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines_OffsetAndPos(t *testing.T) {
	lines := Index("alpha\nbeta\n\ngamma")

	assert.Equal(t, 4, lines.Count())
	assert.Equal(t, 0, lines.Offset(Pos{Line: 1, Column: 1}))
	assert.Equal(t, 6, lines.Offset(Pos{Line: 2, Column: 1}))
	assert.Equal(t, 11, lines.Offset(Pos{Line: 3, Column: 1}))
	assert.Equal(t, Pos{Line: 2, Column: 3}, lines.Pos(8))
	assert.Equal(t, Pos{Line: 4, Column: 6}, lines.Pos(100))
}

func TestLines_Clamp(t *testing.T) {
	lines := Index("ab\ncd\r\nlast")

	tests := []struct {
		name string
		in   Pos
		want Pos
	}{
		{"before start", Pos{Line: 0, Column: 0}, Pos{Line: 1, Column: 1}},
		{"column past line end", Pos{Line: 1, Column: 40}, Pos{Line: 1, Column: 3}},
		{"crlf excluded", Pos{Line: 2, Column: 9}, Pos{Line: 2, Column: 3}},
		{"line past end", Pos{Line: 9, Column: 1}, Pos{Line: 3, Column: 5}},
		{"valid", Pos{Line: 3, Column: 2}, Pos{Line: 3, Column: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lines.Clamp(tt.in))
		})
	}
}

func TestLines_Slice(t *testing.T) {
	lines := Index("one\ntwo\nthree\n")
	assert.Equal(t, []string{"two", "three"}, lines.Slice(2, 3))
	assert.Equal(t, []string{"one", "two", "three", ""}, lines.Slice(-5, 50))
	assert.Nil(t, lines.Slice(3, 2))
}

func TestOp_MapOffset(t *testing.T) {
	// "hello world" -> "hello brave new world"
	ins := Op{Offset: 6, Inserted: "brave new "}

	off, ok := ins.MapOffset(2, BiasRight)
	assert.True(t, ok)
	assert.Equal(t, 2, off)

	off, _ = ins.MapOffset(6, BiasLeft)
	assert.Equal(t, 6, off)
	off, _ = ins.MapOffset(6, BiasRight)
	assert.Equal(t, 16, off)

	off, _ = ins.MapOffset(8, BiasLeft)
	assert.Equal(t, 18, off)

	// replace "world" with "there"
	rep := Op{Offset: 6, Deleted: "world", Inserted: "there!"}
	off, ok = rep.MapOffset(8, BiasRight)
	assert.False(t, ok)
	assert.Equal(t, 12, off)
	off, ok = rep.MapOffset(11, BiasLeft)
	assert.True(t, ok)
	assert.Equal(t, 12, off)
}

func TestOp_InverseRoundTrip(t *testing.T) {
	text := "line one\nline two\n"
	op := Op{Offset: 5, Deleted: "one", Inserted: "1"}

	changed := op.Apply(text)
	require.Equal(t, "line 1\nline two\n", changed)
	assert.Equal(t, text, op.Inverse().Apply(changed))
}

func TestBuffer_UndoGroups(t *testing.T) {
	b := NewBuffer("a\nb\nc\n")

	b.Replace(Range{Start: Pos{1, 1}, End: Pos{1, 2}}, "A")
	b.Replace(Range{Start: Pos{2, 1}, End: Pos{2, 2}}, "B")
	b.PushUndoStop()
	b.Replace(Range{Start: Pos{3, 1}, End: Pos{3, 2}}, "C")
	b.PushUndoStop()

	assert.Equal(t, "A\nB\nC\n", b.Text())
	assert.Equal(t, 2, b.UndoDepth())

	ops := b.Undo()
	require.Len(t, ops, 1)
	assert.Equal(t, "A\nB\nc\n", b.Text())

	ops = b.Undo()
	require.Len(t, ops, 2)
	assert.Equal(t, "a\nb\nc\n", b.Text())
	assert.False(t, b.CanUndo())

	b.Redo()
	assert.Equal(t, "A\nB\nc\n", b.Text())
	assert.True(t, b.CanRedo())
}

func TestBuffer_NewEditClearsRedo(t *testing.T) {
	b := NewBuffer("x")
	b.SetText("y")
	b.Undo()
	require.True(t, b.CanRedo())

	b.Replace(Range{Start: Pos{1, 2}, End: Pos{1, 2}}, "z")
	assert.False(t, b.CanRedo())
	assert.Equal(t, "xz", b.Text())
}

func TestBuffer_Decorations(t *testing.T) {
	b := NewBuffer("one\ntwo\n")
	b.Decorate("b", Range{Start: Pos{2, 1}, End: Pos{2, 4}}, "insert")
	b.Decorate("a", Range{Start: Pos{1, 1}, End: Pos{1, 4}}, "delete")

	decos := b.Decorations()
	require.Len(t, decos, 2)
	assert.Equal(t, "a", decos[0].ID)
	assert.Equal(t, "insert", decos[1].Class)

	b.ClearDecoration("a")
	assert.Len(t, b.Decorations(), 1)
}

func TestReplaceOffsets(t *testing.T) {
	b := NewBuffer("abc\ndef\n")
	op := ReplaceOffsets(b, 4, 7, "XYZ!")

	assert.Equal(t, Op{Offset: 4, Deleted: "def", Inserted: "XYZ!"}, op)
	assert.Equal(t, "abc\nXYZ!\n", b.Text())

	noop := ReplaceOffsets(b, 0, 3, "abc")
	assert.True(t, noop.IsNoop())
	assert.Equal(t, 1, b.Version())
}
