package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/oklog/ulid/v2"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/audit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/docstore"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/promptctx"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/reasoning"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

var (
	ErrNotOpen   = errors.New("document is not open")
	ErrRunActive = errors.New("a run is already in progress for this document")
	ErrNoRun     = errors.New("no run in progress")
)

// DefaultAutosaveDebounce is the quiet period before a dirty document is
// written back.
const DefaultAutosaveDebounce = 800 * time.Millisecond

// reflectTimeout bounds one memory reflection call.
const reflectTimeout = time.Minute

// Documents reads and writes document text.
type Documents interface {
	Read(path string) (string, error)
	Write(path, text string) error
}

// Options configures a Coordinator.
type Options struct {
	Client    reasoning.Client
	Docs      Documents
	Trail     audit.Trail
	Bus       *event.Bus
	Assembler *promptctx.Assembler

	ModelTier  string
	ForceEdit  bool
	MaxRetries int
	// RetryInterval is the first wait before reconnecting a failed stream.
	RetryInterval time.Duration

	AutosaveDisabled bool
	AutosaveDebounce time.Duration
}

// Coordinator owns the open documents, their runs and their review state.
// A single mutex serializes every buffer and ledger mutation; slow work such
// as network reads and file writes happens outside it.
type Coordinator struct {
	opts Options

	mu     sync.Mutex
	ledger *review.Ledger
	docs   map[string]*Document
	runs   map[string]*runState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Coordinator. Trail and Bus may be nil.
func New(opts Options) *Coordinator {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.AutosaveDebounce <= 0 {
		opts.AutosaveDebounce = DefaultAutosaveDebounce
	}
	if opts.Assembler == nil {
		var docs promptctx.Documents
		if d, ok := opts.Docs.(promptctx.Documents); ok {
			docs = d
		}
		opts.Assembler = promptctx.New(docs, nil, promptctx.Options{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		opts:   opts,
		docs:   make(map[string]*Document),
		runs:   make(map[string]*runState),
		ctx:    ctx,
		cancel: cancel,
	}
	c.ledger = review.NewLedger(&observer{c: c})
	return c
}

// generateID returns a sortable id with the given prefix.
func generateID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

func (c *Coordinator) publish(t event.EventType, data any) {
	if c.opts.Bus != nil {
		c.opts.Bus.PublishSync(event.Event{Type: t, Data: data})
	}
}

// Open loads path into a buffer and registers it for review. Opening an
// open document returns its current state. A missing file opens empty.
func (c *Coordinator) Open(ctx context.Context, path string) (*DocumentInfo, error) {
	path, err := docstore.Clean(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if d, ok := c.docs[path]; ok {
		defer c.mu.Unlock()
		return d.info(c.ledger), nil
	}
	c.mu.Unlock()

	text, err := c.opts.Docs.Read(path)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		text = ""
	}

	var memory string
	var memoryVersion int
	if c.opts.Trail != nil {
		if m, err := c.opts.Trail.GetMemory(ctx, path); err == nil {
			memory, memoryVersion = m.Text, m.Version
		} else {
			logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("file", path).Msg("failed to load document memory")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.docs[path]; ok {
		return d.info(c.ledger), nil
	}
	d := &Document{
		path:          path,
		buffer:        textbuf.NewBuffer(text),
		state:         StateIdle,
		memory:        memory,
		memoryVersion: memoryVersion,
	}
	d.savedVersion = d.buffer.Version()
	if !c.opts.AutosaveDisabled {
		d.schedule = debounce.New(c.opts.AutosaveDebounce)
	}
	if err := c.ledger.Open(path, d.buffer); err != nil {
		return nil, err
	}
	c.docs[path] = d

	logging.Component(logging.ComponentCoordinator).Info().Str("file", path).Msg("document opened")
	c.publish(event.DocumentOpened, event.DocumentData{Path: path, Version: d.buffer.Version()})
	return d.info(c.ledger), nil
}

// Close aborts the document's run, writes unsaved text and forgets the
// document together with its pending changes.
func (c *Coordinator) Close(path string) error {
	c.mu.Lock()
	d, ok := c.docs[path]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	done := d.done
	if d.cancel != nil {
		d.cancel()
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	saveErr := c.Save(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ledger.Close(path); err != nil {
		return err
	}
	delete(c.docs, path)
	for id, rs := range c.runs {
		if rs.run.FilePath == path {
			delete(c.runs, id)
		}
	}
	if d.schedule != nil {
		// drop a pending autosave
		d.schedule(func() {})
	}

	logging.Component(logging.ComponentCoordinator).Info().Str("file", path).Msg("document closed")
	c.publish(event.DocumentClosed, event.DocumentData{Path: path, Version: d.buffer.Version(), Dirty: d.dirty})
	return saveErr
}

// Activate makes path the document whose pending changes are decorated and
// navigated.
func (c *Coordinator) Activate(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activate(path)
}

// Document returns the current state of an open document.
func (c *Coordinator) Document(path string) (*DocumentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	return d.info(c.ledger), nil
}

// Documents returns the state of every open document.
func (c *Coordinator) Documents() []*DocumentInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*DocumentInfo, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, d.info(c.ledger))
	}
	return out
}

// ExternalChange handles a file modified outside the engine. An idle, clean
// document with no pending changes is reloaded; otherwise the buffer wins
// and the conflict is only reported.
func (c *Coordinator) ExternalChange(path string) {
	c.mu.Lock()
	d, ok := c.docs[path]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	text, err := c.opts.Docs.Read(path)
	if err != nil {
		logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("file", path).Msg("failed to read externally changed file")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.docs[path] != d || text == d.buffer.Text() {
		return
	}
	reload := !d.state.Busy() && !d.dirty && len(c.ledger.Pending(path)) == 0
	if reload {
		lines := textbuf.Index(d.buffer.Text())
		if _, err := c.ledger.RecordEdit(path, lines.Range(0, len(lines.Text())), text); err != nil {
			logging.Component(logging.ComponentCoordinator).Warn().Err(err).Str("file", path).Msg("failed to reload file")
			return
		}
		d.buffer.PushUndoStop()
		d.savedVersion = d.buffer.Version()
	}
	logging.Component(logging.ComponentCoordinator).Info().
		Str("file", path).
		Bool("reloaded", reload).
		Msg("file changed on disk")
	c.publish(event.DocumentChangedOnDisk, event.DocumentChangedOnDiskData{Path: path, Reloaded: reload})
	if reload {
		c.publish(event.DocumentUpdated, event.DocumentData{Path: path, Version: d.buffer.Version()})
	}
}

// Wait blocks until background runs and memory reflections have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown aborts every run, waits for background work and writes back
// unsaved documents.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	paths := make([]string, 0, len(c.docs))
	for p := range c.docs {
		paths = append(paths, p)
	}
	c.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := c.Save(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
