// Package lifecycle tracks temporary artifacts of one task and releases each
// of them exactly once when the task scope ends.
package lifecycle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/pdftask/observability"
)

// Resource is something a scope releases. Key identifies it; registering the
// same key twice releases it once.
type Resource interface {
	Key() string
	Release() error
}

type fileResource struct{ path string }

func (r fileResource) Key() string { return "file:" + r.path }
func (r fileResource) Release() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type dirResource struct{ path string }

func (r dirResource) Key() string    { return "dir:" + r.path }
func (r dirResource) Release() error { return os.RemoveAll(r.path) }

type closerResource struct {
	name string
	c    io.Closer
}

func (r closerResource) Key() string    { return "closer:" + r.name }
func (r closerResource) Release() error { return r.c.Close() }

type funcResource struct {
	key string
	fn  func() error
}

func (r funcResource) Key() string    { return r.key }
func (r funcResource) Release() error { return r.fn() }

// File removes path. A file that is already gone is not a failure.
func File(path string) Resource { return fileResource{path: path} }

// Dir removes path and everything below it.
func Dir(path string) Resource { return dirResource{path: path} }

// Closer closes c. name must be unique within the scope.
func Closer(name string, c io.Closer) Resource { return closerResource{name: name, c: c} }

// Func runs fn on release.
func Func(key string, fn func() error) Resource { return funcResource{key: key, fn: fn} }

// Option configures a Scope.
type Option func(*Scope)

// WithTempDir sets the directory TempFile and TempDir create entries in.
func WithTempDir(dir string) Option { return func(s *Scope) { s.dir = dir } }

// Scope owns the resources of one task invocation. It is safe for
// concurrent use.
type Scope struct {
	mu        sync.Mutex
	logger    observability.Logger
	dir       string
	resources []Resource
	seen      map[string]bool
	closed    bool
}

// NewScope returns an open scope. A nil logger discards release failures.
func NewScope(logger observability.Logger, opts ...Option) *Scope {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	s := &Scope{logger: logger, seen: make(map[string]bool)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds r to the scope. After Close, r is released immediately.
func (s *Scope) Register(r Resource) {
	s.mu.Lock()
	if s.seen[r.Key()] {
		s.mu.Unlock()
		return
	}
	s.seen[r.Key()] = true
	if s.closed {
		s.mu.Unlock()
		s.release(r)
		return
	}
	s.resources = append(s.resources, r)
	s.mu.Unlock()
}

// TempFile creates an empty file named <uuid-hex><suffix> in the scope's
// directory and registers it. The file is closed before returning.
func (s *Scope) TempFile(suffix string) (string, error) {
	path := filepath.Join(s.tempDir(), newName()+suffix)
	s.Register(File(path))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	return path, nil
}

// TempDir creates a registered directory.
func (s *Scope) TempDir() (string, error) {
	path := filepath.Join(s.tempDir(), newName())
	s.Register(Dir(path))
	if err := os.Mkdir(path, 0o700); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return path, nil
}

func newName() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func (s *Scope) tempDir() string {
	if s.dir != "" {
		return s.dir
	}
	return os.TempDir()
}

// Len reports how many resources are waiting for release.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

// Close releases every resource in reverse registration order. Failures are
// logged and never returned, so Close can run in a defer next to the task
// error. Calling Close again does nothing.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.resources
	s.resources = nil
	s.mu.Unlock()

	var failed []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := s.release(pending[i]); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("scope closed with release failures",
			observability.Int("failures", len(failed)),
			observability.Error("error", errors.Join(failed...)))
	}
}

func (s *Scope) release(r Resource) error {
	if err := r.Release(); err != nil {
		s.logger.Error("release failed", observability.String("resource", r.Key()), observability.Error("error", err))
		return fmt.Errorf("%s: %w", r.Key(), err)
	}
	s.logger.Debug("released", observability.String("resource", r.Key()))
	return nil
}
