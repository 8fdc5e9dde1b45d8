package review

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

type recorder struct {
	added    []Change
	resolved []Change
	outcomes map[string]Outcome
}

func newRecorder() *recorder {
	return &recorder{outcomes: make(map[string]Outcome)}
}

func (r *recorder) ChangeAdded(c Change)    { r.added = append(r.added, c) }
func (r *recorder) ChangeResolved(c Change) { r.resolved = append(r.resolved, c) }
func (r *recorder) RunReviewed(runID, _ string, o Outcome) {
	r.outcomes[runID] = o
}

func twelveLines() string {
	var b strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func at(line, col int) edit.Point { return edit.Point{Line: line, Column: col} }

func setup(t *testing.T, text string) (*Ledger, *textbuf.Buffer, *recorder) {
	t.Helper()
	rec := newRecorder()
	l := NewLedger(rec)
	buf := textbuf.NewBuffer(text)
	require.NoError(t, l.Open("main.tex", buf))
	return l, buf, rec
}

func begin(t *testing.T, l *Ledger, id string, sel *edit.Selection) {
	t.Helper()
	_, err := l.BeginRun(RunSpec{ID: id, FilePath: "main.tex", Selection: sel})
	require.NoError(t, err)
}

func TestHistory_Map(t *testing.T) {
	var h History
	// "xyz" -> "abxyz" -> "abxz"
	h.Record(textbuf.Op{Offset: 0, Inserted: "ab"}, textbuf.Op{Offset: 3, Deleted: "y"})
	require.Equal(t, 2, h.Rev())

	off, ok := h.Map(2, 0, 2, textbuf.BiasLeft)
	assert.True(t, ok)
	assert.Equal(t, 3, off)

	off, ok = h.Map(3, 2, 0, textbuf.BiasRight)
	assert.True(t, ok)
	assert.Equal(t, 2, off)

	_, ok = h.Map(1, 2, 0, textbuf.BiasLeft)
	assert.False(t, ok, "offset inside inserted text has no origin")

	h.Trim(1)
	assert.Equal(t, 1, h.Base())
	_, ok = h.Map(0, 0, 2, textbuf.BiasLeft)
	assert.False(t, ok)
}

func TestApply_PureInsertion(t *testing.T) {
	doc := twelveLines()
	l, buf, rec := setup(t, doc)
	begin(t, l, "run1", nil)

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(9, 1), End: at(9, 1), Text: "New sentence.\n"},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	c := changes[0]
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, 1, c.AddedLines)
	assert.Equal(t, 0, c.RemovedLines)
	assert.False(t, c.Deferred)
	assert.Equal(t, strings.Replace(doc, "line 9\n", "New sentence.\nline 9\n", 1), buf.Text())
	assert.Len(t, rec.added, 1)

	snap, ok := l.Snapshot("run1")
	require.True(t, ok)
	assert.Equal(t, doc, snap)
}

func TestApply_DeletionWaitsForAccept(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(5, 1), End: at(7, 1), Text: ""},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Deferred)
	assert.Equal(t, 2, changes[0].RemovedLines)
	assert.Equal(t, doc, buf.Text())

	accepted, err := l.Accept(changes[0].ID)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, StatusAccepted, accepted[0].Status)
	assert.Equal(t, strings.Replace(doc, "line 5\nline 6\n", "", 1), buf.Text())
	assert.Empty(t, l.Pending("main.tex"))

	_, ok := l.Snapshot("run1")
	assert.False(t, ok, "snapshot released once nothing is pending")
}

func TestApply_DeletionRejected(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(5, 1), End: at(7, 1)},
	}})
	require.NoError(t, err)

	_, err = l.Reject(changes[0].ID)
	require.NoError(t, err)
	assert.Empty(t, l.Pending("main.tex"))
	assert.Equal(t, doc, buf.Text())
}

func TestApply_MixedBatchKeepsSnapshotCoordinates(t *testing.T) {
	doc := twelveLines()
	want := strings.Replace(doc, "line 3\n", "LINE 3\n", 1)
	want = strings.Replace(want, "line 10\n", "LINE 10\n", 1)

	orders := [][]edit.Edit{
		{
			{Start: at(3, 1), End: at(3, 7), Text: "LINE 3"},
			{Start: at(10, 1), End: at(10, 8), Text: "LINE 10"},
		},
		{
			{Start: at(10, 1), End: at(10, 8), Text: "LINE 10"},
			{Start: at(3, 1), End: at(3, 7), Text: "LINE 3"},
		},
	}
	for i, edits := range orders {
		t.Run(fmt.Sprintf("order %d", i), func(t *testing.T) {
			l, buf, _ := setup(t, doc)
			begin(t, l, "run1", nil)

			changes, err := l.Apply(Batch{RunID: "run1", Edits: edits})
			require.NoError(t, err)
			assert.Len(t, changes, 2)
			assert.Equal(t, want, buf.Text())
			assert.Equal(t, 1, buf.UndoDepth(), "replacements form one undo step")
		})
	}
}

func TestApply_StreamedBatchesMapThroughEarlierEdits(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)

	_, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(2, 1), End: at(2, 1), Text: "inserted\n"},
	}})
	require.NoError(t, err)
	_, err = l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(6, 1), End: at(6, 7), Text: "six"},
	}})
	require.NoError(t, err)

	want := strings.Replace(doc, "line 2\n", "inserted\nline 2\n", 1)
	want = strings.Replace(want, "line 6\n", "six\n", 1)
	assert.Equal(t, want, buf.Text())
}

func TestReject_RollbackExactness(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(1, 1), End: at(1, 1), Text: "% header\n"},
		{Start: at(4, 1), End: at(4, 7), Text: "four"},
		{Start: at(7, 1), End: at(8, 1)},
		{Start: at(11, 6), End: at(11, 6), Text: " and more"},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 4)

	byText := make(map[string]Change)
	for _, c := range changes {
		byText[c.Edit.Text] = c
	}
	_, err = l.Accept(byText["four"].ID)
	require.NoError(t, err)
	_, err = l.Accept(byText[""].ID)
	require.NoError(t, err)
	_, err = l.Reject(byText[" and more"].ID)
	require.NoError(t, err)

	_, err = l.RejectRun("run1")
	require.NoError(t, err)
	assert.Equal(t, doc, buf.Text())
}

func TestReject_ReappliesRemainingChanges(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(3, 1), End: at(3, 1), Text: "three-a\n"},
		{Start: at(10, 1), End: at(10, 8), Text: "LINE 10"},
		{Start: at(6, 1), End: at(7, 1)},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 3)

	var upper Change
	for _, c := range changes {
		if c.Edit.Text == "LINE 10" {
			upper = c
		}
	}
	_, err = l.Reject(upper.ID)
	require.NoError(t, err)

	assert.Equal(t, strings.Replace(doc, "line 3\n", "three-a\nline 3\n", 1), buf.Text())
	pending := l.Pending("main.tex")
	require.Len(t, pending, 2)
	assert.Equal(t, "three-a\n", pending[0].Edit.Text)
	assert.True(t, pending[1].Deferred)
	assert.Equal(t, textbuf.Pos{Line: 7, Column: 1}, pending[1].Range.Start, "deferred deletion still points at line 6 of the snapshot")

	_, err = l.Accept(pending[1].ID)
	require.NoError(t, err)
	want := strings.Replace(doc, "line 3\n", "three-a\nline 3\n", 1)
	want = strings.Replace(want, "line 6\n", "", 1)
	assert.Equal(t, want, buf.Text())
}

func TestApply_DuplicateEditsDropped(t *testing.T) {
	l, buf, _ := setup(t, twelveLines())
	begin(t, l, "run1", nil)

	batch := Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(2, 1), End: at(2, 1), Text: "once\n"},
	}}
	first, err := l.Apply(batch)
	require.NoError(t, err)
	second, err := l.Apply(batch)
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, l.Pending("main.tex"), 1)
	assert.Equal(t, 1, strings.Count(buf.Text(), "once\n"))
}

func TestApply_SelectionConstraint(t *testing.T) {
	l, _, _ := setup(t, twelveLines())
	begin(t, l, "run1", &edit.Selection{StartLine: 2, StartColumn: 1, EndLine: 5, EndColumn: 1})

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(8, 1), End: at(8, 7), Text: "outside"},
		{Start: at(3, 1), End: at(3, 5), Text: "LINE"},
		{Start: at(8, 1), End: at(8, 1), Text: "point\n"},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.NotEqual(t, "outside", c.Edit.Text)
	}
}

func TestApply_OverlappingEditDropped(t *testing.T) {
	l, _, _ := setup(t, twelveLines())
	begin(t, l, "run1", nil)

	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(5, 1), End: at(5, 7), Text: "whole"},
		{Start: at(5, 3), End: at(5, 5), Text: "part"},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "part", changes[0].Edit.Text)
}

func TestApply_UserEditBeforeFirstEdit(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)

	_, err := l.RecordEdit("main.tex", textbuf.Range{Start: textbuf.Pos{Line: 1, Column: 1}, End: textbuf.Pos{Line: 1, Column: 1}}, "XX\n")
	require.NoError(t, err)

	_, err = l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(5, 1), End: at(5, 7), Text: "five"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "XX\n"+strings.Replace(doc, "line 5\n", "five\n", 1), buf.Text())

	_, err = l.RejectAll("main.tex")
	require.NoError(t, err)
	assert.Equal(t, "XX\n"+doc, buf.Text(), "typing before the snapshot survives rejection")
}

func TestApply_ConflictWithPendingText(t *testing.T) {
	l, _, _ := setup(t, twelveLines())
	begin(t, l, "run1", nil)
	_, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(3, 1), End: at(3, 1), Text: "NEW\n"},
	}})
	require.NoError(t, err)
	l.EndRun("run1")

	begin(t, l, "run2", nil)
	changes, err := l.Apply(Batch{RunID: "run2", Edits: []edit.Edit{
		{Start: at(3, 1), End: at(3, 4), Text: "OLD"},
		{Start: at(9, 1), End: at(9, 1), Text: "fine\n"},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "fine\n", changes[0].Edit.Text)
}

func TestRejectRun_KeepsUserTypingAndOtherRuns(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)
	_, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(1, 1), End: at(1, 1), Text: "R1\n"},
	}})
	require.NoError(t, err)
	l.EndRun("run1")

	_, err = l.RecordEdit("main.tex", textbuf.Range{Start: textbuf.Pos{Line: 11, Column: 1}, End: textbuf.Pos{Line: 11, Column: 1}}, "USER ")
	require.NoError(t, err)

	begin(t, l, "run2", nil)
	_, err = l.Apply(Batch{RunID: "run2", Edits: []edit.Edit{
		{Start: at(5, 1), End: at(5, 1), Text: "R2\n"},
	}})
	require.NoError(t, err)
	snap, ok := l.Snapshot("run2")
	require.True(t, ok)
	assert.Contains(t, snap, "USER line 10\n")

	_, err = l.RejectRun("run2")
	require.NoError(t, err)
	assert.Equal(t, snap, buf.Text())
	_, ok = l.Snapshot("run2")
	assert.False(t, ok)

	pending := l.Pending("main.tex")
	require.Len(t, pending, 1)
	assert.Equal(t, "run1", pending[0].RunID)

	_, err = l.RejectRun("run1")
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(doc, "line 10\n", "USER line 10\n", 1), buf.Text())
}

func TestApply_EditOverAcceptedTextOfEarlierRun(t *testing.T) {
	doc := twelveLines()
	l, buf, _ := setup(t, doc)
	begin(t, l, "run1", nil)
	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(1, 1), End: at(1, 1), Text: "R1\n"},
		{Start: at(6, 1), End: at(6, 1), Text: "other\n"},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		if c.Edit.Text == "R1\n" {
			_, err = l.Accept(c.ID)
			require.NoError(t, err)
		}
	}
	l.EndRun("run1")
	_, held := l.Snapshot("run1")
	require.True(t, held, "run1 still has a pending change")

	begin(t, l, "run2", nil)
	added, err := l.Apply(Batch{RunID: "run2", Edits: []edit.Edit{
		{Start: at(1, 1), End: at(1, 3), Text: "R2"},
	}})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.True(t, strings.HasPrefix(buf.Text(), "R2\nline 1\n"))

	_, err = l.RejectRun("run1")
	require.NoError(t, err)
	assert.Equal(t, "R2\n"+doc, buf.Text(), "rolling back run1 leaves run2's rewrite alone")

	_, err = l.RejectRun("run2")
	require.NoError(t, err)
	assert.Equal(t, "R1\n"+doc, buf.Text())
}

func TestApplyFallback(t *testing.T) {
	l, buf, _ := setup(t, "a\nb\n")
	begin(t, l, "run1", nil)

	changes, err := l.ApplyFallback("run1", "c\n", "rewrite")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Fallback)
	assert.Equal(t, "rewrite", changes[0].Summary)
	assert.Equal(t, "c\n", buf.Text())

	_, err = l.RejectAll("main.tex")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", buf.Text())
}

func TestResolve_TwiceFails(t *testing.T) {
	l, _, _ := setup(t, twelveLines())
	begin(t, l, "run1", nil)
	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(1, 1), End: at(1, 1), Text: "x"},
	}})
	require.NoError(t, err)

	_, err = l.Accept(changes[0].ID)
	require.NoError(t, err)
	_, err = l.Reject(changes[0].ID)
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = l.Accept("chg_missing")
	assert.ErrorIs(t, err, ErrUnknownChange)
}

func TestRunReviewedOutcome(t *testing.T) {
	l, _, rec := setup(t, twelveLines())
	begin(t, l, "run1", nil)
	changes, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(1, 1), End: at(1, 1), Text: "a\n"},
		{Start: at(5, 1), End: at(5, 1), Text: "b\n"},
	}})
	require.NoError(t, err)

	_, err = l.Accept(changes[0].ID)
	require.NoError(t, err)
	_, err = l.Accept(changes[1].ID)
	require.NoError(t, err)
	assert.Empty(t, rec.outcomes, "no verdict while the run is streaming")

	l.EndRun("run1")
	assert.Equal(t, OutcomeAccepted, rec.outcomes["run1"])

	begin(t, l, "run2", nil)
	changes, err = l.Apply(Batch{RunID: "run2", Edits: []edit.Edit{
		{Start: at(2, 1), End: at(2, 1), Text: "c\n"},
		{Start: at(6, 1), End: at(6, 1), Text: "d\n"},
	}})
	require.NoError(t, err)
	l.EndRun("run2")
	_, err = l.Accept(changes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, l.RunPending("run2"))
	_, err = l.Reject(changes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, rec.outcomes["run2"])
	assert.Len(t, rec.resolved, 4)
}

func TestNavigationAndDecorations(t *testing.T) {
	l, buf, _ := setup(t, twelveLines())
	begin(t, l, "run1", nil)
	_, err := l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(10, 1), End: at(10, 1), Text: "ten\n"},
		{Start: at(3, 1), End: at(3, 1), Text: "three\n"},
		{Start: at(6, 1), End: at(7, 1)},
	}})
	require.NoError(t, err)

	decos := buf.Decorations()
	require.Len(t, decos, 3)
	assert.Equal(t, ClassInsert, decos[0].Class)
	assert.Equal(t, ClassDelete, decos[1].Class)

	c, ok := l.Next()
	require.True(t, ok)
	assert.Equal(t, "three\n", c.Edit.Text)
	c, _ = l.Next()
	assert.True(t, c.Deferred)
	c, _ = l.Next()
	assert.Equal(t, "ten\n", c.Edit.Text)
	c, _ = l.Next()
	assert.Equal(t, "three\n", c.Edit.Text, "navigation wraps")
	c, _ = l.Prev()
	assert.Equal(t, "ten\n", c.Edit.Text)

	cur, ok := l.Current()
	require.True(t, ok)
	assert.Equal(t, c.ID, cur.ID)
	assert.Len(t, buf.Decorations(), 4, "focus decoration painted")

	_, err = l.AcceptAll("main.tex")
	require.NoError(t, err)
	assert.Empty(t, buf.Decorations())
	_, ok = l.Current()
	assert.False(t, ok)
}

func TestInactiveFileNotDecorated(t *testing.T) {
	l, _, _ := setup(t, "main\n")
	other := textbuf.NewBuffer("one\ntwo\n")
	require.NoError(t, l.Open("other.tex", other))

	_, err := l.BeginRun(RunSpec{ID: "run1", FilePath: "other.tex"})
	require.NoError(t, err)
	_, err = l.Apply(Batch{RunID: "run1", Edits: []edit.Edit{
		{Start: at(2, 1), End: at(2, 1), Text: "inserted\n"},
	}})
	require.NoError(t, err)
	assert.Empty(t, other.Decorations())

	require.NoError(t, l.Activate("other.tex"))
	assert.Len(t, other.Decorations(), 1)
	assert.Equal(t, "other.tex", l.Active())
}
