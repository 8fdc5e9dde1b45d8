package edit

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

func pt(line, col int) Point { return Point{Line: line, Column: col} }

func TestEdit_Kinds(t *testing.T) {
	ins := Edit{Start: pt(9, 1), End: pt(9, 1), Text: "New sentence.\n"}
	del := Edit{Start: pt(5, 1), End: pt(7, 1)}
	rep := Edit{Start: pt(2, 1), End: pt(2, 4), Text: "xyz"}

	assert.True(t, ins.IsInsertion())
	assert.False(t, ins.IsDeletion())
	assert.True(t, del.IsDeletion())
	assert.False(t, rep.IsInsertion())
	assert.False(t, rep.IsDeletion())
	assert.True(t, Edit{Start: pt(1, 1), End: pt(1, 1)}.IsNoop())
}

func TestEdit_Clamp(t *testing.T) {
	e := Edit{Start: pt(0, -3), End: pt(-1, 0)}.Clamp()
	assert.Equal(t, pt(1, 1), e.Start)
	assert.Equal(t, pt(1, 1), e.End)

	reversed := Edit{Start: pt(4, 2), End: pt(2, 7)}.Clamp()
	assert.Equal(t, pt(2, 7), reversed.Start)
	assert.Equal(t, pt(4, 2), reversed.End)
}

func TestSelection_Containment(t *testing.T) {
	sel := &Selection{StartLine: 2, StartColumn: 1, EndLine: 5, EndColumn: 1}

	outside := Edit{Start: pt(1, 1), End: pt(1, 5), Text: "x"}
	inside := Edit{Start: pt(3, 1), End: pt(3, 5), Text: "y"}
	point := Edit{Start: pt(1, 1), End: pt(1, 1), Text: "z"}

	kept, dropped := Normalize([]Edit{outside, inside, point}, sel)

	require.Len(t, kept, 2)
	assert.Equal(t, inside, kept[0])
	assert.Equal(t, point, kept[1])
	assert.Equal(t, []Edit{outside}, dropped)
}

func TestSelection_PointDoesNotConstrain(t *testing.T) {
	sel := &Selection{StartLine: 3, StartColumn: 4, EndLine: 3, EndColumn: 4}
	kept, dropped := Normalize([]Edit{{Start: pt(1, 1), End: pt(1, 3), Text: "q"}}, sel)
	assert.Len(t, kept, 1)
	assert.Empty(t, dropped)
}

func TestNormalize_SortsDescendingAndKeepsTies(t *testing.T) {
	a := Edit{Start: pt(3, 1), End: pt(3, 1), Text: "a"}
	b := Edit{Start: pt(10, 2), End: pt(10, 4), Text: "b"}
	c := Edit{Start: pt(3, 1), End: pt(3, 1), Text: "c"}
	d := Edit{Start: pt(10, 1), End: pt(10, 1), Text: "d"}

	kept, _ := Normalize([]Edit{a, b, c, d}, nil)
	assert.Equal(t, []Edit{b, d, a, c}, kept)
}

func TestNormalize_DropsNoops(t *testing.T) {
	kept, dropped := Normalize([]Edit{{Start: pt(2, 2), End: pt(2, 2)}}, nil)
	assert.Empty(t, kept)
	assert.Empty(t, dropped)
}

func TestFingerprint(t *testing.T) {
	e := Edit{Start: pt(1, 1), End: pt(1, 4), Text: "abc"}

	assert.Equal(t, Fingerprint("r1", "a.tex", e), Fingerprint("r1", "a.tex", e))
	assert.NotEqual(t, Fingerprint("r1", "a.tex", e), Fingerprint("r2", "a.tex", e))
	assert.NotEqual(t, Fingerprint("r1", "a.tex", e), Fingerprint("r1", "b.tex", e))

	other := e
	other.Text = "abd"
	assert.NotEqual(t, Fingerprint("r1", "a.tex", e), Fingerprint("r1", "a.tex", other))
	assert.Len(t, Fingerprint("r1", "a.tex", e), 32)
}

func TestResolve_ClampsOutOfBounds(t *testing.T) {
	lines := textbuf.Index("abc\ndef")

	start, end := Resolve(Edit{Start: pt(2, 2), End: pt(40, 1)}, lines)
	assert.Equal(t, 5, start)
	assert.Equal(t, 7, end)

	start, end = Resolve(Edit{Start: pt(1, 99), End: pt(1, 99)}, lines)
	assert.Equal(t, 3, start)
	assert.Equal(t, 3, end)
}

func TestWholeText(t *testing.T) {
	lines := textbuf.Index("one\ntwo\n")
	e := WholeText(lines, "replacement")
	start, end := Resolve(e, lines)
	assert.Equal(t, 0, start)
	assert.Equal(t, len("one\ntwo\n"), end)
}

func TestLineStats(t *testing.T) {
	added, removed, preview := LineStats("", "New sentence.\n")
	assert.Equal(t, 1, added)
	assert.Equal(t, 0, removed)
	assert.Contains(t, preview, "New sentence.")

	added, removed, _ = LineStats("line 5\nline 6\n", "")
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, removed)

	added, removed, preview = LineStats("same", "same")
	assert.Zero(t, added)
	assert.Zero(t, removed)
	assert.Empty(t, preview)
}

// applyAll applies already-normalized edits to text one after another.
func applyAll(text string, edits []Edit) string {
	for _, e := range edits {
		lines := textbuf.Index(text)
		start, end := Resolve(e, lines)
		text = text[:start] + e.Text + text[end:]
	}
	return text
}

func TestOrderingInvariant(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 12; i++ {
		b.WriteString("line ")
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}
	snapshot := b.String()

	edits := []Edit{
		{Start: pt(3, 1), End: pt(3, 6), Text: "LINE "},
		{Start: pt(10, 1), End: pt(11, 1), Text: ""},
		{Start: pt(7, 3), End: pt(7, 3), Text: "inserted\n"},
		{Start: pt(1, 1), End: pt(1, 1), Text: "% header\n"},
	}

	reference, _ := Normalize(edits, nil)
	want := applyAll(snapshot, reference)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]Edit(nil), edits...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		sorted, _ := Normalize(shuffled, nil)
		assert.Equal(t, want, applyAll(snapshot, sorted))
	}

	// Ascending application shifts later ranges and corrupts the result.
	ascending := append([]Edit(nil), reference...)
	for i, j := 0, len(ascending)-1; i < j; i, j = i+1, j-1 {
		ascending[i], ascending[j] = ascending[j], ascending[i]
	}
	assert.NotEqual(t, want, applyAll(snapshot, ascending))
}
