package session

import (
	"context"
	"fmt"
	"time"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// observer forwards ledger notifications. The ledger only calls it while
// the coordinator mutex is held.
type observer struct {
	c *Coordinator
}

func (o *observer) ChangeAdded(ch review.Change) {
	o.c.publish(event.ChangeAdded, event.ChangeData{Change: ch})
}

func (o *observer) ChangeResolved(ch review.Change) {
	c := o.c
	c.publish(event.ChangeResolved, event.ChangeData{Change: ch})
	if c.opts.Trail == nil {
		return
	}
	d := &types.Decision{
		ChangeID: ch.ID,
		RunID:    ch.RunID,
		FilePath: ch.FilePath,
		Status:   string(ch.Status),
		Edit:     ch.Edit,
		Summary:  ch.Summary,
		Fallback: ch.Fallback,
		Time:     time.Now().UnixMilli(),
	}
	if err := c.opts.Trail.SaveDecision(context.Background(), d); err != nil {
		logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("change", ch.ID).Msg("failed to record decision")
	}
}

func (o *observer) RunReviewed(runID, filePath string, outcome review.Outcome) {
	c := o.c
	if rs, ok := c.runs[runID]; ok {
		status := types.RunAccepted
		if outcome == review.OutcomeRejected {
			status = types.RunRejected
		}
		rs.run.Outcome = status
		if rs.run.Status == types.RunCompleted {
			rs.run.Status = status
		}
		c.saveRun(rs)
	}
	c.publish(event.RunReviewed, event.RunReviewedData{RunID: runID, FilePath: filePath, Outcome: outcome})
}

// Pending returns the pending changes of path in document order.
func (c *Coordinator) Pending(path string) ([]review.Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[path]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	return c.ledger.Pending(path), nil
}

// Change returns a pending change.
func (c *Coordinator) Change(id string) (review.Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Get(id)
}

// Accept keeps the given changes.
func (c *Coordinator) Accept(ids ...string) ([]review.Change, error) {
	return c.resolve(func(l *review.Ledger) ([]review.Change, error) { return l.Accept(ids...) })
}

// AcceptAll keeps every pending change of path.
func (c *Coordinator) AcceptAll(path string) ([]review.Change, error) {
	return c.resolve(func(l *review.Ledger) ([]review.Change, error) { return l.AcceptAll(path) })
}

// AcceptRun keeps every pending change of a run.
func (c *Coordinator) AcceptRun(runID string) ([]review.Change, error) {
	return c.resolve(func(l *review.Ledger) ([]review.Change, error) { return l.AcceptRun(runID) })
}

// Reject reverts the given changes.
func (c *Coordinator) Reject(ids ...string) ([]review.Change, error) {
	return c.resolve(func(l *review.Ledger) ([]review.Change, error) { return l.Reject(ids...) })
}

// RejectAll reverts every pending change of path.
func (c *Coordinator) RejectAll(path string) ([]review.Change, error) {
	return c.resolve(func(l *review.Ledger) ([]review.Change, error) { return l.RejectAll(path) })
}

// RejectRun reverts every pending change of a run.
func (c *Coordinator) RejectRun(runID string) ([]review.Change, error) {
	return c.resolve(func(l *review.Ledger) ([]review.Change, error) { return l.RejectRun(runID) })
}

func (c *Coordinator) resolve(fn func(*review.Ledger) ([]review.Change, error)) ([]review.Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	versions := make(map[string]int, len(c.docs))
	for p, d := range c.docs {
		versions[p] = d.buffer.Version()
	}
	resolved, err := fn(c.ledger)
	if err != nil {
		return nil, err
	}
	for p, d := range c.docs {
		if d.buffer.Version() != versions[p] {
			c.markDirty(p)
		}
	}
	return resolved, nil
}

// Next moves the review cursor of path to the following pending change,
// wrapping around. path becomes the active document.
func (c *Coordinator) Next(path string) (review.Change, bool, error) {
	return c.navigate(path, (*review.Ledger).Next)
}

// Prev moves the review cursor of path to the preceding pending change.
func (c *Coordinator) Prev(path string) (review.Change, bool, error) {
	return c.navigate(path, (*review.Ledger).Prev)
}

// Current returns the change under the review cursor of path.
func (c *Coordinator) Current(path string) (review.Change, bool, error) {
	return c.navigate(path, (*review.Ledger).Current)
}

// Focus moves the review cursor of path to a change.
func (c *Coordinator) Focus(path, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activate(path); err != nil {
		return err
	}
	return c.ledger.Focus(id)
}

func (c *Coordinator) navigate(path string, step func(*review.Ledger) (review.Change, bool)) (review.Change, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activate(path); err != nil {
		return review.Change{}, false, err
	}
	ch, ok := step(c.ledger)
	return ch, ok, nil
}

// activate makes path active if it is not. Called with c.mu held.
func (c *Coordinator) activate(path string) error {
	if _, ok := c.docs[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	if c.ledger.Active() == path {
		return nil
	}
	return c.ledger.Activate(path)
}
