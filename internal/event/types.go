package event

import (
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// DocumentData is the data for document.opened, document.closed and
// document.updated events.
type DocumentData struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
	Dirty   bool   `json:"dirty"`
}

// DocumentSavedData is the data for document.saved events.
type DocumentSavedData struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

// DocumentSaveFailedData is the data for document.save_failed events.
type DocumentSaveFailedData struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DocumentChangedOnDiskData is the data for document.changed_on_disk events.
// Reloaded is set when the open document picked up the new content.
type DocumentChangedOnDiskData struct {
	Path     string `json:"path"`
	Reloaded bool   `json:"reloaded"`
}

// RunUpdatedData is the data for run.updated events.
type RunUpdatedData struct {
	Info *types.Run `json:"info"`
}

// RunThoughtData is the data for run.thought events.
type RunThoughtData struct {
	RunID    string `json:"runID"`
	FilePath string `json:"filePath"`
	Text     string `json:"text"`
}

// RunReviewedData is the data for run.reviewed events.
type RunReviewedData struct {
	RunID    string         `json:"runID"`
	FilePath string         `json:"filePath"`
	Outcome  review.Outcome `json:"outcome"`
}

// ChangeData is the data for change.added and change.resolved events.
type ChangeData struct {
	Change review.Change `json:"change"`
}
