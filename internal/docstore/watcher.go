package docstore

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
)

// Watcher reports documents changed on disk under a workspace root.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	ignore   []string
	onChange func(path string)
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher watches root and its non-hidden subdirectories. onChange
// receives the workspace-relative path of every written or created file
// not matching an ignore pattern.
func NewWatcher(root string, ignore []string, onChange func(path string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		dirs++
		return w.Add(p)
	})
	if err != nil {
		w.Close()
		return nil, err
	}
	logging.Info().Str("root", root).Int("dirs", dirs).Msg("document watcher initialized")

	return &Watcher{
		watcher:  w,
		root:     root,
		ignore:   ignore,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("document watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if strings.HasSuffix(ev.Name, tmpSuffix) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(rel), ".") {
				if err := w.watcher.Add(ev.Name); err != nil {
					logging.Warn().Err(err).Str("dir", rel).Msg("failed to watch new directory")
				}
			}
			return
		}
	}

	logging.Debug().Str("path", rel).Str("op", ev.Op.String()).Msg("document changed on disk")
	w.onChange(rel)
}

func (w *Watcher) ignored(rel string) bool {
	for _, pattern := range w.ignore {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
