package session

import (
	"fmt"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// Edit applies a user edit replacing r with text as one undo step.
func (c *Coordinator) Edit(path string, r textbuf.Range, text string) (*DocumentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	d.buffer.PushUndoStop()
	op, err := c.ledger.RecordEdit(path, r, text)
	if err != nil {
		return nil, err
	}
	if !op.IsNoop() {
		d.buffer.PushUndoStop()
		c.markDirty(path)
	}
	return d.info(c.ledger), nil
}

// Undo reverts the last undo step of path, whether it was typed or applied
// by a run.
func (c *Coordinator) Undo(path string) (*DocumentInfo, error) {
	return c.history(path, (*textbuf.Buffer).Undo)
}

// Redo re-applies the last undone step of path.
func (c *Coordinator) Redo(path string) (*DocumentInfo, error) {
	return c.history(path, (*textbuf.Buffer).Redo)
}

func (c *Coordinator) history(path string, step func(*textbuf.Buffer) []textbuf.Op) (*DocumentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	if ops := step(d.buffer); len(ops) > 0 {
		c.ledger.RecordOps(path, ops...)
		c.markDirty(path)
	}
	return d.info(c.ledger), nil
}

// Select sets the selection of path. An empty range is a cursor.
func (c *Coordinator) Select(path string, r textbuf.Range) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	d.buffer.SetSelection(r)
	return nil
}

// ClearSelection drops the selection of path.
func (c *Coordinator) ClearSelection(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	d.buffer.ClearSelection()
	return nil
}

// markDirty flags a buffer change, announces it and schedules an autosave.
// Called with c.mu held.
func (c *Coordinator) markDirty(path string) {
	d, ok := c.docs[path]
	if !ok {
		return
	}
	d.dirty = d.buffer.Version() != d.savedVersion
	c.publish(event.DocumentUpdated, event.DocumentData{Path: path, Version: d.buffer.Version(), Dirty: d.dirty})
	if d.dirty && d.schedule != nil {
		d.schedule(func() { c.autosave(path) })
	}
}

func (c *Coordinator) autosave(path string) {
	if err := c.Save(path); err != nil {
		logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("file", path).Msg("autosave failed")
	}
}

// Save writes the buffer of path back if it has unsaved changes. A failed
// write is reported and retried on the next debounce cycle.
func (c *Coordinator) Save(path string) error {
	c.mu.Lock()
	d, ok := c.docs[path]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	if !d.dirty {
		c.mu.Unlock()
		return nil
	}
	text, version := d.buffer.Text(), d.buffer.Version()
	c.mu.Unlock()

	err := c.opts.Docs.Write(path, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.docs[path] != d {
		return err
	}
	if err != nil {
		d.saveError = err.Error()
		c.publish(event.DocumentSaveFailed, event.DocumentSaveFailedData{Path: path, Error: d.saveError})
		if d.schedule != nil {
			d.schedule(func() { c.autosave(path) })
		}
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	d.saveError = ""
	d.savedVersion = version
	d.dirty = d.buffer.Version() != version
	logging.Component(logging.ComponentCoordinator).Debug().Str("file", path).Int("version", version).Msg("document saved")
	c.publish(event.DocumentSaved, event.DocumentSavedData{Path: path, Version: version})
	return nil
}
