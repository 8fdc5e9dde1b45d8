// Package docstore reads and writes workspace documents and watches them for
// changes made outside the engine.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrOutsideRoot = errors.New("path escapes the workspace")
)

const tmpSuffix = ".proofmesh.tmp"

// Store gives access to the documents under a workspace root. Paths are
// slash-separated and relative to the root.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a Store for the workspace at root on the OS filesystem.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot access workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", abs)
	}
	return NewWithFs(afero.NewOsFs(), abs), nil
}

// NewWithFs creates a Store rooted at root on fs.
func NewWithFs(fsys afero.Fs, root string) *Store {
	return &Store{
		fs:   afero.NewBasePathFs(fsys, root),
		root: root,
	}
}

// Root returns the workspace root.
func (s *Store) Root() string {
	return s.root
}

// Clean normalizes a document path and rejects paths leaving the root.
func Clean(p string) (string, error) {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	p = path.Clean(p)
	if p == "." || p == "" {
		return "", fmt.Errorf("empty document path")
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return p, nil
}

// Read returns the text of the document at p.
func (s *Store) Read(p string) (string, error) {
	p, err := Clean(p)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", p, err)
	}
	return string(data), nil
}

// Write replaces the document at p with text, creating parent directories.
// The content is written to a temporary file and renamed over the target.
func (s *Store) Write(p, text string) error {
	p, err := Clean(p)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp := p + tmpSuffix
	if err := afero.WriteFile(s.fs, tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// Exists reports whether p names a regular file.
func (s *Store) Exists(p string) bool {
	p, err := Clean(p)
	if err != nil {
		return false
	}
	info, err := s.fs.Stat(p)
	return err == nil && !info.IsDir()
}

// IsPattern reports whether p contains glob metacharacters.
func IsPattern(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// Glob returns the documents matching a doublestar pattern such as
// "chapters/**/*.tex", sorted.
func (s *Store) Glob(pattern string) ([]string, error) {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	matches, err := doublestar.Glob(afero.NewIOFS(s.fs), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	out := matches[:0]
	for _, m := range matches {
		if !strings.HasSuffix(m, tmpSuffix) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// List returns every document in the workspace, sorted. Hidden directories
// are skipped.
func (s *Store) List() ([]string, error) {
	var files []string
	err := fs.WalkDir(afero.NewIOFS(s.fs), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, tmpSuffix) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
