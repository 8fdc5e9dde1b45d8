package edit

import (
	"sort"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
)

// Selection is the immutable range constraint captured when a run starts.
type Selection struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// Start returns the selection start point.
func (s Selection) Start() Point { return Point{Line: s.StartLine, Column: s.StartColumn} }

// End returns the selection end point.
func (s Selection) End() Point { return Point{Line: s.EndLine, Column: s.EndColumn} }

// IsPoint reports whether the selection is a zero-width cursor.
func (s Selection) IsPoint() bool {
	return s.Start() == s.End()
}

// Contains reports whether e lies entirely inside the selection. Pure
// insertions are always contained.
func (s Selection) Contains(e Edit) bool {
	if e.IsInsertion() {
		return true
	}
	return !e.Start.Less(s.Start()) && !s.End().Less(e.End)
}

// Normalize clamps every edit, drops edits that escape a non-point selection
// and returns the survivors sorted by descending start position. Edits in one
// batch address the same snapshot, so applying them bottom-up keeps each
// not-yet-applied range valid.
func Normalize(edits []Edit, sel *Selection) (kept, dropped []Edit) {
	kept = make([]Edit, 0, len(edits))
	for _, e := range edits {
		e = e.Clamp()
		if e.IsNoop() {
			continue
		}
		if sel != nil && !sel.IsPoint() && !sel.Contains(e) {
			logging.Component(logging.ComponentNormalizer).Warn().
				Str("edit", e.String()).
				Str("selectionStart", sel.Start().String()).
				Str("selectionEnd", sel.End().String()).
				Msg("edit outside selection dropped")
			dropped = append(dropped, e)
			continue
		}
		kept = append(kept, e)
	}
	SortDescending(kept)
	return kept, dropped
}

// SortDescending sorts edits by descending (start.line, start.column),
// keeping arrival order for ties.
func SortDescending(edits []Edit) {
	sort.SliceStable(edits, func(i, j int) bool {
		return edits[j].Start.Less(edits[i].Start)
	})
}
