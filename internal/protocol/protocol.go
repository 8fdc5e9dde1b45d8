// Package protocol decodes the newline-delimited JSON stream produced by the
// reasoning service into typed events.
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
)

// Kind identifies a decoded event.
type Kind string

const (
	// KindComment is narration meant for the conversation.
	KindComment Kind = "comment"
	// KindThought is an ephemeral "Thinking:" note, never persisted as a
	// message.
	KindThought Kind = "thought"
	// KindEdit carries one or more proposed edits.
	KindEdit Kind = "edit"
	// KindSummary is a short label for the run. Last write wins.
	KindSummary Kind = "summary"
	// KindResult is the terminal record.
	KindResult Kind = "result"
)

const thinkingPrefix = "Thinking:"

// Result is the payload of the terminal record.
type Result struct {
	Comment string      `json:"comment,omitempty"`
	Summary string      `json:"summary,omitempty"`
	Edits   []edit.Edit `json:"edits,omitempty"`
	// UpdatedContent is a whole-buffer replacement sent instead of edits.
	UpdatedContent *string `json:"updated_content,omitempty"`
}

// HasFallback reports whether the result replaces the whole buffer.
func (r *Result) HasFallback() bool {
	return r != nil && len(r.Edits) == 0 && r.UpdatedContent != nil
}

// Event is one decoded record.
type Event struct {
	Kind   Kind
	Text   string
	Edits  []edit.Edit
	Result *Result
}

type record struct {
	Type           string      `json:"type"`
	Text           string      `json:"text"`
	Edits          []edit.Edit `json:"edits"`
	Edit           *edit.Edit  `json:"edit"`
	Comment        string      `json:"comment"`
	Summary        string      `json:"summary"`
	UpdatedContent *string     `json:"updated_content"`
}

// Parse decodes a single line. The second result is false for blank,
// malformed or unknown records.
func Parse(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false
	}
	if !gjson.ValidBytes(line) {
		logging.Component(logging.ComponentProtocol).Debug().Int("bytes", len(line)).Msg("malformed line dropped")
		return Event{}, false
	}

	kind := gjson.GetBytes(line, "type").String()
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		logging.Component(logging.ComponentProtocol).Debug().Err(err).Str("type", kind).Msg("undecodable record dropped")
		return Event{}, false
	}

	switch kind {
	case "comment":
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			return Event{}, false
		}
		if thought, ok := strings.CutPrefix(text, thinkingPrefix); ok {
			return Event{Kind: KindThought, Text: strings.TrimSpace(thought)}, true
		}
		return Event{Kind: KindComment, Text: text}, true

	case "edit":
		edits := rec.Edits
		if rec.Edit != nil {
			edits = append(edits, *rec.Edit)
		}
		if len(edits) == 0 {
			return Event{}, false
		}
		return Event{Kind: KindEdit, Edits: edits}, true

	case "summary":
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			return Event{}, false
		}
		return Event{Kind: KindSummary, Text: text}, true

	case "result":
		return Event{Kind: KindResult, Result: &Result{
			Comment:        strings.TrimSpace(rec.Comment),
			Summary:        strings.TrimSpace(rec.Summary),
			Edits:          rec.Edits,
			UpdatedContent: rec.UpdatedContent,
		}}, true
	}

	logging.Component(logging.ComponentProtocol).Debug().Str("type", kind).Msg("unknown record dropped")
	return Event{}, false
}

// Decoder splits an incrementally delivered byte stream into lines and
// decodes each complete line. It is not safe for concurrent use.
type Decoder struct {
	pending []byte
}

// NewDecoder creates a decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write consumes the next chunk and returns the events of every line it
// completed, in order. A trailing partial line stays buffered.
func (d *Decoder) Write(chunk []byte) []Event {
	d.pending = append(d.pending, chunk...)
	var events []Event
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		if ev, ok := Parse(line); ok {
			events = append(events, ev)
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return events
}

// Flush parses whatever partial line is left as a final record.
func (d *Decoder) Flush() []Event {
	line := d.pending
	d.pending = nil
	if ev, ok := Parse(line); ok {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int { return len(d.pending) }
