// Package review holds the change ledger: the review model for edits proposed
// by reasoning runs. It applies edits to the live buffer through the Surface,
// tracks each one as a pending Change and resolves changes by accepting or
// rejecting them.
//
// Edits address the text a run was sent with. Every op applied to a file is
// recorded in the file's History so those coordinates can be mapped onto the
// live buffer. Each run holds its own snapshot, taken just before its first
// edit is applied; rejecting changes of a run undoes that run's text only and
// leaves user typing and other runs' changes in place.
package review

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// Status is the lifecycle state of a Change.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Outcome is the review verdict of a finished run once all of its changes
// are resolved.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Decoration classes painted on the active file.
const (
	ClassInsert = "proofmesh-insert"
	ClassDelete = "proofmesh-delete"
	ClassFocus  = "proofmesh-focus"
)

const focusDecoration = "proofmesh-focus"

var (
	ErrNotPending    = errors.New("change is not pending")
	ErrUnknownChange = errors.New("unknown change")
	ErrUnknownFile   = errors.New("file is not open")
	ErrUnknownRun    = errors.New("unknown run")
	ErrFileOpen      = errors.New("file is already open")
	ErrNoActiveFile  = errors.New("no active file")
)

// Change is a reviewable wrapper around one edit.
type Change struct {
	ID           string        `json:"id"`
	Key          string        `json:"key"`
	Edit         edit.Edit     `json:"edit"`
	AddedLines   int           `json:"addedLines"`
	RemovedLines int           `json:"removedLines"`
	Summary      string        `json:"summary,omitempty"`
	FilePath     string        `json:"filePath"`
	RunID        string        `json:"runId,omitempty"`
	Status       Status        `json:"status"`
	Deferred     bool          `json:"deferred"`
	Fallback     bool          `json:"fallback,omitempty"`
	Diff         string        `json:"diff,omitempty"`
	Range        textbuf.Range `json:"range"`
	Created      time.Time     `json:"created"`

	seq     int
	removed string
	// live range, valid at revision rev
	liveStart, liveEnd, rev int
}

// Observer receives ledger notifications. Calls are made synchronously with
// copies of the affected changes.
type Observer interface {
	ChangeAdded(c Change)
	ChangeResolved(c Change)
	RunReviewed(runID, filePath string, outcome Outcome)
}

type snapshot struct {
	text string
	rev  int
	// set once an op not made by the owning run lands after the snapshot
	foreign bool
}

type file struct {
	path    string
	surface textbuf.Surface
	history History
	pending []*Change
	focus   string
	painted map[string]bool
}

type run struct {
	id        string
	path      string
	base      string
	baseRev   int
	selection *edit.Selection
	seen      map[string]bool
	active    bool
	reviewed  bool
	total     int
	accepted  int
	rejected  int
	snap      *snapshot
	// accepted changes undone if the run is rejected while its snapshot is held
	kept []*Change
}

// RunSpec describes a run about to be sent.
type RunSpec struct {
	ID        string
	FilePath  string
	Selection *edit.Selection
}

// Ledger is the registry of changes for every open file. It is not safe for
// concurrent use; the session coordinator serializes access.
type Ledger struct {
	files    map[string]*file
	runs     map[string]*run
	index    map[string]*Change
	resolved map[string]Status
	active   string
	observer Observer
	seq      int
	now      func() time.Time
}

// NewLedger creates an empty ledger. obs may be nil.
func NewLedger(obs Observer) *Ledger {
	return &Ledger{
		files:    make(map[string]*file),
		runs:     make(map[string]*run),
		index:    make(map[string]*Change),
		resolved: make(map[string]Status),
		observer: obs,
		now:      time.Now,
	}
}

// Open registers the surface holding path.
func (l *Ledger) Open(path string, s textbuf.Surface) error {
	if _, ok := l.files[path]; ok {
		return fmt.Errorf("%w: %s", ErrFileOpen, path)
	}
	l.files[path] = &file{path: path, surface: s, painted: make(map[string]bool)}
	if l.active == "" {
		l.active = path
	}
	return nil
}

// Close forgets path. Pending changes of the file are discarded without
// being resolved and its runs are dropped.
func (l *Ledger) Close(path string) error {
	f, ok := l.files[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	l.clearDecorations(f)
	for _, c := range f.pending {
		delete(l.index, c.ID)
	}
	for id, r := range l.runs {
		if r.path == path {
			delete(l.runs, id)
		}
	}
	delete(l.files, path)
	if l.active == path {
		l.active = ""
	}
	return nil
}

// Activate makes path the decorated file.
func (l *Ledger) Activate(path string) error {
	f, ok := l.files[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	if prev, ok := l.files[l.active]; ok && prev != f {
		l.clearDecorations(prev)
	}
	l.active = path
	l.redecorate(f)
	return nil
}

// Active returns the active file path.
func (l *Ledger) Active() string { return l.active }

// Snapshot returns the rollback text of a run, if one is held.
func (l *Ledger) Snapshot(runID string) (string, bool) {
	r, ok := l.runs[runID]
	if !ok || r.snap == nil {
		return "", false
	}
	return r.snap.text, true
}

// BeginRun registers a run and returns the buffer text it must be sent with.
// Edits of the run address that text.
func (l *Ledger) BeginRun(spec RunSpec) (string, error) {
	f, ok := l.files[spec.FilePath]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFile, spec.FilePath)
	}
	var sel *edit.Selection
	if spec.Selection != nil {
		s := *spec.Selection
		sel = &s
	}
	base := f.surface.Text()
	l.runs[spec.ID] = &run{
		id:        spec.ID,
		path:      spec.FilePath,
		base:      base,
		baseRev:   f.history.Rev(),
		selection: sel,
		seen:      make(map[string]bool),
		active:    true,
	}
	return base, nil
}

// EndRun marks a run as finished streaming. Its changes stay reviewable.
func (l *Ledger) EndRun(id string) {
	r, ok := l.runs[id]
	if !ok {
		return
	}
	r.active = false
	l.settle(r)
	if f, ok := l.files[r.path]; ok {
		l.compact(f)
	}
}

// RecordEdit applies a user edit of the live range r and records it.
func (l *Ledger) RecordEdit(path string, r textbuf.Range, text string) (textbuf.Op, error) {
	f, ok := l.files[path]
	if !ok {
		return textbuf.Op{}, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	lines := textbuf.Index(f.surface.Text())
	start, end := lines.Offset(r.Start), lines.Offset(r.End)
	if end < start {
		start, end = end, start
	}
	op := textbuf.ReplaceOffsets(f.surface, start, end, text)
	l.RecordOps(path, op)
	return op, nil
}

// RecordOps records ops the surface applied on its own, such as undo and
// redo.
func (l *Ledger) RecordOps(path string, ops ...textbuf.Op) {
	f, ok := l.files[path]
	if !ok {
		return
	}
	l.record(f, "", ops...)
	l.compact(f)
	l.redecorate(f)
}

// record appends ops made by owner to the history of f. An empty owner stands
// for the user.
func (l *Ledger) record(f *file, owner string, ops ...textbuf.Op) {
	f.history.Record(ops...)
	changed := false
	for _, op := range ops {
		if !op.IsNoop() {
			changed = true
		}
	}
	if !changed {
		return
	}
	for _, r := range l.runs {
		if r.path == f.path && r.snap != nil && r.id != owner {
			r.snap.foreign = true
		}
	}
}

// Pending returns the pending changes of path ordered by live position.
func (l *Ledger) Pending(path string) []Change {
	f, ok := l.files[path]
	if !ok {
		return nil
	}
	ordered := l.ordered(f)
	lines := textbuf.Index(f.surface.Text())
	out := make([]Change, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, l.view(f, c, lines))
	}
	return out
}

// PendingCount returns the number of pending changes across all files.
func (l *Ledger) PendingCount() int { return len(l.index) }

// RunPending returns the number of pending changes of a run.
func (l *Ledger) RunPending(runID string) int {
	r, ok := l.runs[runID]
	if !ok {
		return 0
	}
	return r.total - r.accepted - r.rejected
}

// Get returns the change with id, pending or not.
func (l *Ledger) Get(id string) (Change, error) {
	if c, ok := l.index[id]; ok {
		f := l.files[c.FilePath]
		return l.view(f, c, textbuf.Index(f.surface.Text())), nil
	}
	if _, ok := l.resolved[id]; ok {
		return Change{}, fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return Change{}, fmt.Errorf("%w: %s", ErrUnknownChange, id)
}

// Accept keeps the given changes. Deferred deletions are materialized as one
// undo step per file.
func (l *Ledger) Accept(ids ...string) ([]Change, error) {
	groups, err := l.lookup(ids)
	if err != nil {
		return nil, err
	}
	var out []Change
	for _, g := range groups {
		out = append(out, l.accept(g.file, g.changes)...)
	}
	return out, nil
}

// AcceptAll accepts every pending change of path.
func (l *Ledger) AcceptAll(path string) ([]Change, error) {
	f, ok := l.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	return l.accept(f, append([]*Change(nil), f.pending...)), nil
}

// AcceptRun accepts every pending change of a run.
func (l *Ledger) AcceptRun(runID string) ([]Change, error) {
	f, targets, err := l.runChanges(runID)
	if err != nil {
		return nil, err
	}
	return l.accept(f, targets), nil
}

// Reject discards the given changes. Each affected run is taken back to its
// snapshot: the rejected changes and the run's accepted changes are undone
// while its remaining pending changes stay applied.
func (l *Ledger) Reject(ids ...string) ([]Change, error) {
	groups, err := l.lookup(ids)
	if err != nil {
		return nil, err
	}
	var out []Change
	for _, g := range groups {
		out = append(out, l.reject(g.file, g.changes)...)
	}
	return out, nil
}

// RejectAll rejects every pending change of path.
func (l *Ledger) RejectAll(path string) ([]Change, error) {
	f, ok := l.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	return l.reject(f, append([]*Change(nil), f.pending...)), nil
}

// RejectRun rejects every pending change of a run.
func (l *Ledger) RejectRun(runID string) ([]Change, error) {
	f, targets, err := l.runChanges(runID)
	if err != nil {
		return nil, err
	}
	return l.reject(f, targets), nil
}

// Next moves the review cursor of the active file to the following pending
// change, wrapping around.
func (l *Ledger) Next() (Change, bool) { return l.step(1) }

// Prev moves the review cursor to the preceding pending change.
func (l *Ledger) Prev() (Change, bool) { return l.step(-1) }

// Current returns the change under the review cursor.
func (l *Ledger) Current() (Change, bool) {
	f, ok := l.files[l.active]
	if !ok || f.focus == "" {
		return Change{}, false
	}
	c, ok := l.index[f.focus]
	if !ok {
		return Change{}, false
	}
	return l.view(f, c, textbuf.Index(f.surface.Text())), true
}

// Focus moves the review cursor to change id of the active file.
func (l *Ledger) Focus(id string) error {
	f, ok := l.files[l.active]
	if !ok {
		return ErrNoActiveFile
	}
	c, ok := l.index[id]
	if !ok || c.FilePath != f.path {
		if _, done := l.resolved[id]; done {
			return fmt.Errorf("%w: %s", ErrNotPending, id)
		}
		return fmt.Errorf("%w: %s", ErrUnknownChange, id)
	}
	f.focus = id
	l.redecorate(f)
	return nil
}

func (l *Ledger) step(dir int) (Change, bool) {
	f, ok := l.files[l.active]
	if !ok {
		return Change{}, false
	}
	ordered := l.ordered(f)
	if len(ordered) == 0 {
		return Change{}, false
	}
	idx := -1
	for i, c := range ordered {
		if c.ID == f.focus {
			idx = i
			break
		}
	}
	switch {
	case idx < 0 && dir > 0:
		idx = 0
	case idx < 0:
		idx = len(ordered) - 1
	default:
		idx = (idx + dir + len(ordered)) % len(ordered)
	}
	f.focus = ordered[idx].ID
	l.redecorate(f)
	return l.view(f, ordered[idx], textbuf.Index(f.surface.Text())), true
}

type group struct {
	file    *file
	changes []*Change
}

// lookup validates ids and groups them by file, preserving first-seen order.
func (l *Ledger) lookup(ids []string) ([]group, error) {
	var groups []group
	pos := make(map[string]int)
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		c, ok := l.index[id]
		if !ok {
			if _, done := l.resolved[id]; done {
				return nil, fmt.Errorf("%w: %s", ErrNotPending, id)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnknownChange, id)
		}
		i, ok := pos[c.FilePath]
		if !ok {
			i = len(groups)
			pos[c.FilePath] = i
			groups = append(groups, group{file: l.files[c.FilePath]})
		}
		groups[i].changes = append(groups[i].changes, c)
	}
	return groups, nil
}

func (l *Ledger) runChanges(runID string) (*file, []*Change, error) {
	r, ok := l.runs[runID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	f, ok := l.files[r.path]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFile, r.path)
	}
	var targets []*Change
	for _, c := range f.pending {
		if c.RunID == runID {
			targets = append(targets, c)
		}
	}
	return f, targets, nil
}

func (l *Ledger) accept(f *file, targets []*Change) []Change {
	if len(targets) == 0 {
		return nil
	}

	var deferred []*Change
	for _, c := range targets {
		if c.Deferred {
			deferred = append(deferred, c)
		}
	}
	if len(deferred) > 0 {
		sort.SliceStable(deferred, func(i, j int) bool {
			si, _ := l.liveRange(f, deferred[i])
			sj, _ := l.liveRange(f, deferred[j])
			return si > sj
		})
		f.surface.PushUndoStop()
		for _, c := range deferred {
			start, end := l.liveRange(f, c)
			op := textbuf.ReplaceOffsets(f.surface, start, end, "")
			l.record(f, c.RunID, op)
			c.removed = op.Deleted
			c.liveStart, c.liveEnd, c.rev = op.Offset, op.Offset, f.history.Rev()
		}
		f.surface.PushUndoStop()
	}

	lines := textbuf.Index(f.surface.Text())
	out := make([]Change, 0, len(targets))
	for _, c := range targets {
		out = append(out, l.resolve(f, c, StatusAccepted, lines))
		if r, ok := l.runs[c.RunID]; ok && r.snap != nil {
			r.kept = append(r.kept, c)
		}
	}
	l.finish(f, targets, out)
	return out
}

func (l *Ledger) reject(f *file, targets []*Change) []Change {
	if len(targets) == 0 {
		return nil
	}
	lines := textbuf.Index(f.surface.Text())
	out := make([]Change, 0, len(targets))
	for _, c := range targets {
		out = append(out, l.resolve(f, c, StatusRejected, lines))
	}
	l.rollback(f, targets)
	l.finish(f, targets, out)
	return out
}

// resolve moves c out of the pending set and returns its final view.
func (l *Ledger) resolve(f *file, c *Change, status Status, lines *textbuf.Lines) Change {
	v := l.view(f, c, lines)
	c.Status = status
	v.Status = status
	for i, p := range f.pending {
		if p == c {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	delete(l.index, c.ID)
	l.resolved[c.ID] = status
	if f.focus == c.ID {
		f.focus = ""
	}
	if r, ok := l.runs[c.RunID]; ok {
		if status == StatusAccepted {
			r.accepted++
		} else {
			r.rejected++
		}
	}
	logging.Component(logging.ComponentLedger).Debug().
		Str("change", c.ID).
		Str("run", c.RunID).
		Str("status", string(status)).
		Msg("change resolved")
	return v
}

func (l *Ledger) finish(f *file, targets []*Change, views []Change) {
	if l.observer != nil {
		for _, v := range views {
			l.observer.ChangeResolved(v)
		}
	}
	touched := make(map[string]bool)
	for _, c := range targets {
		if touched[c.RunID] {
			continue
		}
		touched[c.RunID] = true
		if r, ok := l.runs[c.RunID]; ok {
			l.settle(r)
		}
	}
	l.compact(f)
	l.redecorate(f)
}

// settle reports the outcome of a finished run with no pending changes left.
func (l *Ledger) settle(r *run) {
	if r.active || r.reviewed || r.total == 0 || r.accepted+r.rejected < r.total {
		return
	}
	r.reviewed = true
	outcome := OutcomeAccepted
	if r.rejected > 0 {
		outcome = OutcomeRejected
	}
	logging.Component(logging.ComponentLedger).Info().
		Str("run", r.id).
		Str("outcome", string(outcome)).
		Msg("run reviewed")
	if l.observer != nil {
		l.observer.RunReviewed(r.id, r.path, outcome)
	}
}

// rollback undoes the rejected changes together with the accepted changes of
// their runs, as one undo step. A run whose snapshot saw no other writer and
// that has nothing left applied ends exactly on its snapshot text.
func (l *Ledger) rollback(f *file, rejected []*Change) {
	var runs []*run
	var undo []*Change
	seen := make(map[string]bool)
	for _, c := range rejected {
		if !c.Deferred {
			undo = append(undo, c)
		}
		if seen[c.RunID] {
			continue
		}
		seen[c.RunID] = true
		if r, ok := l.runs[c.RunID]; ok {
			runs = append(runs, r)
			undo = append(undo, r.kept...)
			r.kept = nil
		}
	}

	f.surface.PushUndoStop()
	sort.SliceStable(undo, func(i, j int) bool {
		si, _ := l.liveRange(f, undo[i])
		sj, _ := l.liveRange(f, undo[j])
		if si != sj {
			return si > sj
		}
		return undo[i].seq > undo[j].seq
	})
	for _, c := range undo {
		start, end := l.liveRange(f, c)
		l.record(f, c.RunID, textbuf.ReplaceOffsets(f.surface, start, end, c.removed))
	}
	for _, r := range runs {
		l.restore(f, r)
	}
	f.surface.PushUndoStop()
}

// restore resets the buffer to the snapshot of r when only r wrote to it since
// the snapshot and none of r's changes remain applied.
func (l *Ledger) restore(f *file, r *run) {
	if r.snap == nil || r.snap.foreign {
		return
	}
	for _, c := range f.pending {
		if c.RunID == r.id && !c.Deferred {
			return
		}
	}
	cur := f.surface.Text()
	if cur == r.snap.text {
		return
	}
	logging.Component(logging.ComponentLedger).Warn().
		Str("file", f.path).
		Str("run", r.id).
		Msg("buffer diverged from history, restoring snapshot text")
	l.record(f, r.id, textbuf.ReplaceOffsets(f.surface, 0, len(cur), r.snap.text))
}

// supersede forgets accepted changes whose text the live range [start, end)
// rewrites, so rolling back their run leaves the newer text alone.
func (l *Ledger) supersede(f *file, start, end int) {
	for _, r := range l.runs {
		if r.path != f.path || len(r.kept) == 0 {
			continue
		}
		kept := r.kept[:0]
		for _, c := range r.kept {
			cs, ce := l.liveRange(f, c)
			if overlaps(start, end, cs, ce) {
				continue
			}
			kept = append(kept, c)
		}
		r.kept = kept
	}
}

// compact refreshes cached live ranges, releases the snapshot of every run
// with nothing pending and trims history no longer needed for mapping.
func (l *Ledger) compact(f *file) {
	keep := f.history.Rev()
	for _, c := range f.pending {
		l.liveRange(f, c)
	}
	if len(f.pending) == 0 {
		f.focus = ""
	}
	for _, r := range l.runs {
		if r.path != f.path {
			continue
		}
		for _, c := range r.kept {
			l.liveRange(f, c)
		}
		if r.snap != nil && r.total-r.accepted-r.rejected == 0 {
			logging.Component(logging.ComponentLedger).Debug().
				Str("file", f.path).
				Str("run", r.id).
				Msg("snapshot released")
			r.snap = nil
			r.kept = nil
		}
		if r.active && r.baseRev < keep {
			keep = r.baseRev
		}
	}
	f.history.Trim(keep)
}

// liveRange returns the current live offsets of c.
func (l *Ledger) liveRange(f *file, c *Change) (int, int) {
	cur := f.history.Rev()
	if c.rev != cur {
		start, _ := f.history.Map(c.liveStart, c.rev, cur, textbuf.BiasRight)
		end, _ := f.history.Map(c.liveEnd, c.rev, cur, textbuf.BiasLeft)
		if end < start {
			end = start
		}
		c.liveStart, c.liveEnd, c.rev = start, end, cur
	}
	return c.liveStart, c.liveEnd
}

func (l *Ledger) ordered(f *file) []*Change {
	out := append([]*Change(nil), f.pending...)
	sort.SliceStable(out, func(i, j int) bool {
		si, _ := l.liveRange(f, out[i])
		sj, _ := l.liveRange(f, out[j])
		if si != sj {
			return si < sj
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (l *Ledger) view(f *file, c *Change, lines *textbuf.Lines) Change {
	v := *c
	start, end := l.liveRange(f, c)
	v.Range = lines.Range(start, end)
	return v
}

func (l *Ledger) redecorate(f *file) {
	if f.path != l.active {
		return
	}
	lines := textbuf.Index(f.surface.Text())
	live := make(map[string]bool, len(f.pending)+1)
	for _, c := range f.pending {
		start, end := l.liveRange(f, c)
		class := ClassInsert
		if c.Deferred {
			class = ClassDelete
		}
		f.surface.Decorate(c.ID, lines.Range(start, end), class)
		live[c.ID] = true
	}
	if c, ok := l.index[f.focus]; ok && c.FilePath == f.path {
		start, end := l.liveRange(f, c)
		f.surface.Decorate(focusDecoration, lines.Range(start, end), ClassFocus)
		live[focusDecoration] = true
	}
	for id := range f.painted {
		if !live[id] {
			f.surface.ClearDecoration(id)
		}
	}
	f.painted = live
}

func (l *Ledger) clearDecorations(f *file) {
	for id := range f.painted {
		f.surface.ClearDecoration(id)
	}
	f.painted = make(map[string]bool)
}

func newChangeID() string {
	return "chg_" + ulid.Make().String()
}
