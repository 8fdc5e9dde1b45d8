package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/promptctx"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/protocol"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/reasoning"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// Instruction is a user request to edit a document.
type Instruction struct {
	Prompt string `json:"prompt"`
	// Selection constrains edits. When nil the buffer's current selection is
	// used, if any.
	Selection *edit.Selection `json:"selection,omitempty"`
	// DismissSelection sends the selection as an excerpt only and lifts the
	// edit constraint.
	DismissSelection bool              `json:"dismissSelection,omitempty"`
	Images           []promptctx.Image `json:"images,omitempty"`
	ForceEdit        *bool             `json:"forceEdit,omitempty"`
	ModelTier        string            `json:"modelTier,omitempty"`
}

// runState is the coordinator's bookkeeping for one run.
type runState struct {
	run     *types.Run
	changes int
	// delivered counts stream events already handled, so a reconnect that
	// replays the stream does not repeat narration.
	delivered int
}

// Run sends in for path and blocks until the stream ends. The returned run
// is also returned on failure, with the error recorded on it.
func (c *Coordinator) Run(ctx context.Context, path string, in Instruction) (*types.Run, error) {
	rs, req, runCtx, err := c.begin(ctx, path, in)
	if err != nil {
		return nil, err
	}
	return c.drive(runCtx, rs, req)
}

// Submit starts a run in the background and returns it as created.
func (c *Coordinator) Submit(path string, in Instruction) (*types.Run, error) {
	rs, req, runCtx, err := c.begin(c.ctx, path, in)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	created := rs.run.Clone()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.drive(runCtx, rs, req); err != nil {
			logging.Component(logging.ComponentCoordinator).Debug().Err(err).Str("run", created.ID).Msg("background run ended with error")
		}
	}()
	return created, nil
}

// Abort cancels the run in progress for path.
func (c *Coordinator) Abort(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	if d.cancel == nil {
		return ErrNoRun
	}
	d.cancel()
	return nil
}

// Runs returns the recorded runs of path, oldest first.
func (c *Coordinator) Runs(ctx context.Context, path string) ([]*types.Run, error) {
	if c.opts.Trail == nil {
		return nil, nil
	}
	return c.opts.Trail.ListRuns(ctx, path)
}

// Messages returns the chat history of path.
func (c *Coordinator) Messages(ctx context.Context, path string) ([]*types.Message, error) {
	if c.opts.Trail == nil {
		return nil, nil
	}
	return c.opts.Trail.ListMessages(ctx, path)
}

// begin moves the document to sending, registers the run with the ledger
// and assembles its request.
func (c *Coordinator) begin(ctx context.Context, path string, in Instruction) (*runState, reasoning.Request, context.Context, error) {
	var req reasoning.Request

	c.mu.Lock()
	d, ok := c.docs[path]
	if !ok {
		c.mu.Unlock()
		return nil, req, nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	if d.state.Busy() {
		c.mu.Unlock()
		return nil, req, nil, fmt.Errorf("%w: %s", ErrRunActive, path)
	}

	sel := in.Selection
	if sel == nil {
		if r, ok := d.buffer.Selection(); ok {
			sel = &edit.Selection{
				StartLine:   r.Start.Line,
				StartColumn: r.Start.Column,
				EndLine:     r.End.Line,
				EndColumn:   r.End.Column,
			}
		}
	}
	constraint := sel
	if in.DismissSelection || (sel != nil && sel.IsPoint()) {
		constraint = nil
	}

	now := time.Now().UnixMilli()
	run := &types.Run{
		ID:        generateID("run"),
		FilePath:  path,
		Prompt:    in.Prompt,
		Selection: constraint,
		Status:    types.RunCreated,
		Time:      types.RunTime{Created: now, Updated: now},
	}
	base, err := c.ledger.BeginRun(review.RunSpec{ID: run.ID, FilePath: path, Selection: constraint})
	if err != nil {
		c.mu.Unlock()
		return nil, req, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	rs := &runState{run: run}
	c.runs[run.ID] = rs
	d.state = StateSending
	d.run = run
	d.cancel = cancel
	d.done = make(chan struct{})
	d.thoughts = nil
	d.lastError = ""
	memory := d.memory

	c.saveRun(rs)
	c.appendMessage(path, types.RoleUser, in.Prompt, run.ID)
	c.mu.Unlock()

	logging.Component(logging.ComponentCoordinator).Info().
		Str("run", run.ID).
		Str("file", path).
		Msg("run started")

	forceEdit := c.opts.ForceEdit
	if in.ForceEdit != nil {
		forceEdit = *in.ForceEdit
	}
	tier := c.opts.ModelTier
	if in.ModelTier != "" {
		tier = in.ModelTier
	}
	req = reasoning.Request{
		RunID:       run.ID,
		Instruction: in.Prompt,
		FilePath:    path,
		Content:     base,
		Memory:      memory,
		ForceEdit:   forceEdit,
		ModelTier:   tier,
	}
	lines := textbuf.Index(base)
	if sel != nil && !sel.IsPoint() {
		start := lines.Offset(textbuf.Pos{Line: sel.StartLine, Column: sel.StartColumn})
		end := lines.Offset(textbuf.Pos{Line: sel.EndLine, Column: sel.EndColumn})
		if end < start {
			start, end = end, start
		}
		req.Selection = base[start:end]
	}

	assembled, err := c.opts.Assembler.Build(runCtx, promptctx.Input{
		Instruction:        in.Prompt,
		FilePath:           path,
		Buffer:             base,
		Selection:          sel,
		SelectionDismissed: in.DismissSelection,
		Images:             in.Images,
	})
	if err != nil {
		// the run is already registered; end it as failed or cancelled
		c.finish(runCtx, rs, fmt.Errorf("failed to assemble context: %w", err))
		return nil, req, nil, err
	}
	req.Context = assembled
	return rs, req, runCtx, nil
}

// drive streams the run to completion, reconnecting on transient failures.
func (c *Coordinator) drive(ctx context.Context, rs *runState, req reasoning.Request) (*types.Run, error) {
	b := newRetryBackoff(ctx, c.opts.RetryInterval, c.opts.MaxRetries)
	var streamErr error
	for attempt := 0; ; attempt++ {
		streamErr = c.attempt(ctx, rs, req)
		if streamErr == nil || ctx.Err() != nil || !reasoning.Retryable(streamErr) {
			break
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		logging.Component(logging.ComponentCoordinator).Warn().
			Err(streamErr).
			Str("run", req.RunID).
			Int("attempt", attempt+1).
			Dur("delay", wait).
			Msg("stream failed, reconnecting")
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}
	return c.finish(ctx, rs, streamErr)
}

// attempt opens one stream and handles its events.
func (c *Coordinator) attempt(ctx context.Context, rs *runState, req reasoning.Request) error {
	body, err := c.opts.Client.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer body.Close()

	c.mu.Lock()
	if d := c.docs[rs.run.FilePath]; d != nil && d.run == rs.run && d.state == StateSending {
		d.state = StateStreaming
		rs.run.Status = types.RunStreaming
		c.saveRun(rs)
	}
	c.mu.Unlock()

	index := 0
	for ev, err := range protocol.Stream(ctx, body) {
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("stream interrupted: %w", err)
			}
			return err
		}
		c.mu.Lock()
		replayed := index < rs.delivered
		c.handle(rs, ev, replayed)
		if !replayed {
			rs.delivered++
		}
		c.mu.Unlock()
		index++
	}
	return ctx.Err()
}

// handle dispatches one stream event. Called with c.mu held. Replayed events
// only contribute edits, which the ledger deduplicates.
func (c *Coordinator) handle(rs *runState, ev protocol.Event, replayed bool) {
	run := rs.run
	switch ev.Kind {
	case protocol.KindThought:
		if replayed {
			return
		}
		if d := c.docs[run.FilePath]; d != nil && d.run == run {
			d.thoughts = append(d.thoughts, ev.Text)
		}
		c.publish(event.RunThought, event.RunThoughtData{RunID: run.ID, FilePath: run.FilePath, Text: ev.Text})

	case protocol.KindComment:
		if replayed {
			return
		}
		c.addStep(rs, ev.Text)

	case protocol.KindSummary:
		if replayed {
			return
		}
		run.Summary = ev.Text
		c.touch(rs)

	case protocol.KindEdit:
		c.applyEdits(rs, ev.Edits, replayed)

	case protocol.KindResult:
		res := ev.Result
		if res == nil {
			return
		}
		if !replayed {
			if res.Comment != "" {
				c.addStep(rs, res.Comment)
			}
			if res.Summary != "" {
				run.Summary = res.Summary
			}
		}
		c.applyEdits(rs, res.Edits, replayed)
		if res.HasFallback() && rs.changes == 0 {
			changes, err := c.ledger.ApplyFallback(run.ID, *res.UpdatedContent, run.Summary)
			if err != nil {
				logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("run", run.ID).Msg("fallback not applied")
			}
			if len(changes) > 0 {
				rs.changes += len(changes)
				run.Fallback = true
				c.markDirty(run.FilePath)
			}
		}
		c.touch(rs)
	}
}

func (c *Coordinator) applyEdits(rs *runState, edits []edit.Edit, replayed bool) {
	if len(edits) == 0 {
		return
	}
	run := rs.run
	if !replayed {
		run.Edits = append(run.Edits, edits...)
	}
	changes, err := c.ledger.Apply(review.Batch{RunID: run.ID, Summary: run.Summary, Edits: edits})
	if err != nil {
		logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("run", run.ID).Msg("edits not applied")
		return
	}
	if len(changes) > 0 {
		rs.changes += len(changes)
		c.markDirty(run.FilePath)
	}
	c.touch(rs)
}

func (c *Coordinator) addStep(rs *runState, text string) {
	rs.run.Steps = append(rs.run.Steps, text)
	c.appendMessage(rs.run.FilePath, types.RoleAssistant, text, rs.run.ID)
	c.touch(rs)
}

// touch records and announces an update of the run. Called with c.mu held.
func (c *Coordinator) touch(rs *runState) {
	rs.run.Time.Updated = time.Now().UnixMilli()
	c.saveRun(rs)
}

// finish ends the run in the ledger and records its final status.
func (c *Coordinator) finish(ctx context.Context, rs *runState, streamErr error) (*types.Run, error) {
	c.mu.Lock()
	run := rs.run
	d := c.docs[run.FilePath]

	var err error
	switch {
	case ctx.Err() != nil:
		run.Status = types.RunCancelled
		err = ctx.Err()
	case streamErr != nil:
		run.Status = types.RunFailed
		run.Error = streamErr.Error()
		err = fmt.Errorf("run %s failed: %w", run.ID, streamErr)
	default:
		run.Status = types.RunCompleted
	}
	now := time.Now().UnixMilli()
	run.Time.Updated = now
	run.Time.Finished = &now

	if d != nil && d.run == run {
		switch run.Status {
		case types.RunCancelled:
			d.state = StateCancelled
		case types.RunFailed:
			d.state = StateFailed
			d.lastError = run.Error
		default:
			d.state = StateCompleted
		}
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
		if d.done != nil {
			close(d.done)
			d.done = nil
		}
	}
	// EndRun may report the review outcome right away
	c.ledger.EndRun(run.ID)
	c.saveRun(rs)
	final := run.Clone()

	var memory string
	if d != nil {
		memory = d.memory
	}
	c.mu.Unlock()

	logging.Component(logging.ComponentCoordinator).Info().
		Str("run", final.ID).
		Str("status", string(final.Status)).
		Int("changes", rs.changes).
		Msg("run finished")

	if final.Status == types.RunCompleted || final.Status == types.RunAccepted || final.Status == types.RunRejected {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.reflect(final, memory)
		}()
	}
	return final, err
}

// reflect asks the reasoning service to fold the finished run into the
// document's memory. Failures only cost the update.
func (c *Coordinator) reflect(run *types.Run, memory string) {
	ctx, cancel := context.WithTimeout(c.ctx, reflectTimeout)
	defer cancel()

	text, err := c.opts.Client.Reflect(ctx, reasoning.MemoryRequest{
		FilePath:    run.FilePath,
		Memory:      memory,
		Instruction: run.Prompt,
		Summary:     run.Summary,
		Steps:       run.Steps,
	})
	if err != nil {
		logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("run", run.ID).Msg("memory reflection failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[run.FilePath]
	if !ok {
		return
	}
	d.memory = text
	d.memoryVersion++
	if c.opts.Trail != nil {
		mem := &types.Memory{
			FilePath: run.FilePath,
			Text:     text,
			Version:  d.memoryVersion,
			Updated:  time.Now().UnixMilli(),
		}
		if err := c.opts.Trail.SaveMemory(context.Background(), mem); err != nil {
			logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("file", run.FilePath).Msg("failed to save memory")
		}
	}
}

// saveRun bumps the run version, records it and publishes it. Called with
// c.mu held.
func (c *Coordinator) saveRun(rs *runState) {
	rs.run.Version++
	snapshot := rs.run.Clone()
	if c.opts.Trail != nil {
		if err := c.opts.Trail.SaveRun(context.Background(), snapshot); err != nil {
			logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("run", snapshot.ID).Msg("failed to record run")
		}
	}
	c.publish(event.RunUpdated, event.RunUpdatedData{Info: snapshot})
}

// appendMessage records a chat message. Called with c.mu held.
func (c *Coordinator) appendMessage(path string, role types.MessageRole, content, runID string) {
	if c.opts.Trail == nil || content == "" {
		return
	}
	msg := &types.Message{
		ID:       generateID("msg"),
		FilePath: path,
		Role:     role,
		Content:  content,
		RunID:    runID,
		Created:  time.Now().UnixMilli(),
	}
	if err := c.opts.Trail.AppendMessage(context.Background(), msg); err != nil {
		logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("file", path).Msg("failed to record message")
	}
}
