package review

import (
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// History is the linear log of every op applied to one file's buffer. Each op
// advances the revision by one. Offsets taken at any retained revision can be
// mapped to any other retained revision.
type History struct {
	base int
	ops  []textbuf.Op
}

// Rev returns the current revision.
func (h *History) Rev() int { return h.base + len(h.ops) }

// Base returns the oldest revision that can still be mapped.
func (h *History) Base() int { return h.base }

// Record appends ops in application order. No-op entries are skipped.
func (h *History) Record(ops ...textbuf.Op) {
	for _, op := range ops {
		if op.IsNoop() {
			continue
		}
		h.ops = append(h.ops, op)
	}
}

// Map translates off from the text at revision from to the text at revision
// to. Mapping backwards walks the inverse ops. The second result is false if
// off fell inside text replaced in between, or a revision is out of range.
func (h *History) Map(off, from, to int, bias textbuf.Bias) (int, bool) {
	if from < h.base || to < h.base || from > h.Rev() || to > h.Rev() {
		return off, false
	}
	ok := true
	if from <= to {
		for r := from; r < to; r++ {
			var hit bool
			off, hit = h.ops[r-h.base].MapOffset(off, bias)
			ok = ok && hit
		}
		return off, ok
	}
	for r := from - 1; r >= to; r-- {
		var hit bool
		off, hit = h.ops[r-h.base].Inverse().MapOffset(off, bias)
		ok = ok && hit
	}
	return off, ok
}

// Trim forgets every op before revision rev.
func (h *History) Trim(rev int) {
	if rev <= h.base {
		return
	}
	if rev > h.Rev() {
		rev = h.Rev()
	}
	h.ops = append([]textbuf.Op(nil), h.ops[rev-h.base:]...)
	h.base = rev
}
