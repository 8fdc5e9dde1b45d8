package session

import (
	"context"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// State is the run state of a document.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Busy reports whether a run is in flight.
func (s State) Busy() bool {
	return s == StateSending || s == StateStreaming
}

// Document is the coordinator's state for one open file. All fields are
// guarded by the coordinator mutex.
type Document struct {
	path   string
	buffer *textbuf.Buffer

	state  State
	run    *types.Run
	cancel context.CancelFunc
	done   chan struct{}

	thoughts  []string
	lastError string

	// autosave
	schedule     func(func())
	dirty        bool
	saveError    string
	savedVersion int

	memory        string
	memoryVersion int
}

// DocumentInfo is a point-in-time view of an open document.
type DocumentInfo struct {
	Path        string               `json:"path"`
	Text        string               `json:"text"`
	Version     int                  `json:"version"`
	State       State                `json:"state"`
	Active      bool                 `json:"active"`
	Run         *types.Run           `json:"run,omitempty"`
	Thoughts    []string             `json:"thoughts"`
	LastError   string               `json:"lastError,omitempty"`
	Dirty       bool                 `json:"dirty"`
	SaveError   string               `json:"saveError,omitempty"`
	Memory      string               `json:"memory,omitempty"`
	CanUndo     bool                 `json:"canUndo"`
	CanRedo     bool                 `json:"canRedo"`
	Pending     []review.Change      `json:"pending"`
	Decorations []textbuf.Decoration `json:"decorations"`
}

func (d *Document) info(l *review.Ledger) *DocumentInfo {
	info := &DocumentInfo{
		Path:        d.path,
		Text:        d.buffer.Text(),
		Version:     d.buffer.Version(),
		State:       d.state,
		Active:      l.Active() == d.path,
		Thoughts:    append([]string{}, d.thoughts...),
		LastError:   d.lastError,
		Dirty:       d.dirty,
		SaveError:   d.saveError,
		Memory:      d.memory,
		CanUndo:     d.buffer.CanUndo(),
		CanRedo:     d.buffer.CanRedo(),
		Pending:     l.Pending(d.path),
		Decorations: d.buffer.Decorations(),
	}
	if d.run != nil {
		info.Run = d.run.Clone()
	}
	return info
}
