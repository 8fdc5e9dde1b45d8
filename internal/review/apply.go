package review

import (
	"errors"
	"fmt"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

var errConflict = errors.New("edit conflicts with text changed since the run was sent")

// Batch is one group of edits streamed by a run.
type Batch struct {
	RunID   string
	Summary string
	Edits   []edit.Edit
}

// Apply normalizes a batch of a run and applies it to the run's file. Pure
// insertions are applied at once, one undo step each. Replacements are applied
// together as one undo step. Pure deletions are recorded but deferred until
// accepted. Edits already seen in the run, edits outside the run's selection
// and edits overlapping a pending change are dropped.
func (l *Ledger) Apply(b Batch) ([]Change, error) {
	return l.apply(b, false)
}

// ApplyFallback proposes replacing the whole text the run was sent with by
// content. It is used when a run ends with a full replacement instead of
// edits, and yields a single change labelled as a fallback.
func (l *Ledger) ApplyFallback(runID, content, summary string) ([]Change, error) {
	r, ok := l.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	logging.Component(logging.ComponentApplier).Warn().
		Str("run", runID).
		Str("file", r.path).
		Msg("applying whole-buffer fallback")
	whole := edit.WholeText(textbuf.Index(r.base), content)
	return l.apply(Batch{RunID: runID, Summary: summary, Edits: []edit.Edit{whole}}, true)
}

func (l *Ledger) apply(b Batch, fallback bool) ([]Change, error) {
	r, ok := l.runs[b.RunID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, b.RunID)
	}
	f, ok := l.files[r.path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, r.path)
	}

	kept, _ := edit.Normalize(b.Edits, r.selection)
	base := textbuf.Index(r.base)

	var replacements, insertions, deletions []edit.Edit
	for _, e := range kept {
		switch {
		case e.IsDeletion():
			deletions = append(deletions, e)
		case e.IsInsertion():
			insertions = append(insertions, e)
		default:
			replacements = append(replacements, e)
		}
	}

	var added []*Change
	place := func(e edit.Edit, deferred bool) {
		key := edit.Fingerprint(r.id, r.path, e)
		if r.seen[key] {
			return
		}
		r.seen[key] = true
		c, err := l.place(f, r, base, e, deferred)
		if err != nil {
			logging.Component(logging.ComponentApplier).Warn().
				Err(err).
				Str("run", r.id).
				Str("edit", e.String()).
				Msg("edit dropped")
			return
		}
		c.Key = key
		c.Summary = b.Summary
		c.Fallback = fallback
		added = append(added, c)
	}

	f.surface.PushUndoStop()
	for _, e := range replacements {
		place(e, false)
	}
	f.surface.PushUndoStop()
	for _, e := range insertions {
		place(e, false)
		f.surface.PushUndoStop()
	}
	for _, e := range deletions {
		place(e, true)
	}

	lines := textbuf.Index(f.surface.Text())
	out := make([]Change, 0, len(added))
	for _, c := range added {
		v := l.view(f, c, lines)
		out = append(out, v)
		if l.observer != nil {
			l.observer.ChangeAdded(v)
		}
	}
	l.compact(f)
	l.redecorate(f)
	return out, nil
}

// place resolves e against the run's base text, maps it onto the live buffer
// and records it as a pending change. The run's snapshot is captured first if
// it holds none.
func (l *Ledger) place(f *file, r *run, base *textbuf.Lines, e edit.Edit, deferred bool) (*Change, error) {
	if r.snap == nil {
		r.snap = &snapshot{text: f.surface.Text(), rev: f.history.Rev()}
		logging.Component(logging.ComponentApplier).Debug().
			Str("file", f.path).
			Str("run", r.id).
			Int("rev", r.snap.rev).
			Msg("snapshot captured")
	}

	bStart, bEnd := edit.Resolve(e, base)
	startBias := textbuf.BiasRight
	if bStart == bEnd {
		startBias = textbuf.BiasLeft
	}

	cur := f.history.Rev()
	lStart, ok1 := f.history.Map(bStart, r.baseRev, cur, startBias)
	lEnd, ok2 := f.history.Map(bEnd, r.baseRev, cur, textbuf.BiasLeft)
	if !ok1 || !ok2 || lEnd < lStart {
		return nil, errConflict
	}
	for _, p := range f.pending {
		ps, pe := l.liveRange(f, p)
		if overlaps(lStart, lEnd, ps, pe) {
			return nil, fmt.Errorf("edit overlaps pending change %s", p.ID)
		}
	}
	l.supersede(f, lStart, lEnd)

	removed := r.base[bStart:bEnd]
	addedLines, removedLines, diff := edit.LineStats(removed, e.Text)

	l.seq++
	c := &Change{
		ID:           newChangeID(),
		Edit:         e,
		AddedLines:   addedLines,
		RemovedLines: removedLines,
		FilePath:     f.path,
		RunID:        r.id,
		Status:       StatusPending,
		Deferred:     deferred,
		Diff:         diff,
		Created:      l.now(),
		seq:          l.seq,
		removed:      removed,
	}

	if deferred {
		c.liveStart, c.liveEnd, c.rev = lStart, lEnd, cur
	} else {
		op := textbuf.ReplaceOffsets(f.surface, lStart, lEnd, e.Text)
		l.record(f, r.id, op)
		c.removed = op.Deleted
		c.liveStart, c.liveEnd, c.rev = op.Offset, op.Offset+len(op.Inserted), f.history.Rev()
	}

	f.pending = append(f.pending, c)
	l.index[c.ID] = c
	r.total++
	return c, nil
}

// overlaps reports whether two live ranges touch the same text. A pure
// insertion overlaps a range only when it falls strictly inside it.
func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	switch {
	case aStart == aEnd:
		return bStart < aStart && aStart < bEnd
	case bStart == bEnd:
		return aStart < bStart && bStart < aEnd
	default:
		return aStart < bEnd && bStart < aEnd
	}
}
