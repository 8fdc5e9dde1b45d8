// Package types provides the records shared by the engine, the audit trail
// and the HTTP API.
package types

import (
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunCreated   RunStatus = "created"
	RunStreaming RunStatus = "streaming"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
	// Review outcomes, set once every change of a finished run is resolved.
	RunAccepted RunStatus = "accepted"
	RunRejected RunStatus = "rejected"
)

// Finished reports whether the run is no longer streaming.
func (s RunStatus) Finished() bool {
	switch s {
	case RunCreated, RunStreaming:
		return false
	}
	return true
}

// Run is one instruction sent to the reasoning service and its response.
type Run struct {
	ID        string          `json:"id"`
	FilePath  string          `json:"filePath"`
	Prompt    string          `json:"prompt"`
	Selection *edit.Selection `json:"selection,omitempty"`
	Steps     []string        `json:"steps"`
	Edits     []edit.Edit     `json:"edits"`
	Summary   string          `json:"summary,omitempty"`
	Status    RunStatus       `json:"status"`
	Error     string          `json:"error,omitempty"`
	Fallback  bool            `json:"fallback,omitempty"`
	// Outcome is the review verdict. Status takes it too when the run
	// completed normally.
	Outcome RunStatus `json:"outcome,omitempty"`
	// Version increases on every update so stale writes can be discarded.
	Version int     `json:"version"`
	Time    RunTime `json:"time"`
}

// RunTime contains timestamps for a run, in unix milliseconds.
type RunTime struct {
	Created  int64  `json:"created"`
	Updated  int64  `json:"updated"`
	Finished *int64 `json:"finished,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	c := *r
	c.Steps = append([]string(nil), r.Steps...)
	c.Edits = append([]edit.Edit(nil), r.Edits...)
	if r.Selection != nil {
		sel := *r.Selection
		c.Selection = &sel
	}
	if r.Time.Finished != nil {
		f := *r.Time.Finished
		c.Time.Finished = &f
	}
	return &c
}

// MessageRole is the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one conversation entry about a document.
type Message struct {
	ID       string      `json:"id"`
	FilePath string      `json:"filePath"`
	Role     MessageRole `json:"role"`
	Content  string      `json:"content"`
	RunID    string      `json:"runID,omitempty"`
	Created  int64       `json:"created"`
}

// Memory is the long-lived free-text summary kept per document.
type Memory struct {
	FilePath string `json:"filePath"`
	Text     string `json:"text"`
	Version  int    `json:"version"`
	Updated  int64  `json:"updated"`
}

// Decision records the review outcome of one change.
type Decision struct {
	ChangeID string    `json:"changeID"`
	RunID    string    `json:"runID"`
	FilePath string    `json:"filePath"`
	Status   string    `json:"status"`
	Edit     edit.Edit `json:"edit"`
	Summary  string    `json:"summary,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
	Time     int64     `json:"time"`
}
