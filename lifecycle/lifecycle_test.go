package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wudi/pdftask/observability"
)

func TestTempFileRemovedOnClose(t *testing.T) {
	dir := t.TempDir()
	s := NewScope(nil, WithTempDir(dir))
	path, err := s.TempFile(".pdf")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".pdf"))
	assert.Len(t, strings.TrimSuffix(filepath.Base(path), ".pdf"), 32)
	require.FileExists(t, path)

	s.Close()
	assert.NoFileExists(t, path)
}

func TestTempDirRemovedWithContents(t *testing.T) {
	s := NewScope(nil, WithTempDir(t.TempDir()))
	dir, err := s.TempDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.pdf"), []byte("x"), 0o600))
	s.Close()
	assert.NoDirExists(t, dir)
}

func TestReleaseExactlyOnce(t *testing.T) {
	s := NewScope(nil)
	calls := 0
	r := Func("counter", func() error { calls++; return nil })
	s.Register(r)
	s.Register(r)
	assert.Equal(t, 1, s.Len())
	s.Close()
	s.Close()
	assert.Equal(t, 1, calls)
}

func TestReverseOrder(t *testing.T) {
	s := NewScope(nil)
	var order []string
	for _, k := range []string{"a", "b", "c"} {
		k := k
		s.Register(Func(k, func() error { order = append(order, k); return nil }))
	}
	s.Close()
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestRegisterAfterCloseReleasesImmediately(t *testing.T) {
	s := NewScope(nil)
	s.Close()
	released := false
	s.Register(Func("late", func() error { released = true; return nil }))
	assert.True(t, released)
}

func TestFailuresAreLoggedNotRaised(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewScope(observability.NewZap(zap.New(core)))
	after := false
	s.Register(Func("ok", func() error { after = true; return nil }))
	s.Register(Func("broken", func() error { return errors.New("disk gone") }))
	s.Close()

	assert.True(t, after, "a failing release must not stop the others")
	assert.Equal(t, 1, logs.FilterMessage("release failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("scope closed with release failures").Len())
}

func TestMissingFileIsNotAFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewScope(observability.NewZap(zap.New(core)))
	s.Register(File(filepath.Join(t.TempDir(), "never-created.pdf")))
	s.Close()
	assert.Zero(t, logs.FilterMessage("release failed").Len())
}

func TestCloserResource(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "closer")
	require.NoError(t, err)
	s := NewScope(nil)
	s.Register(Closer("handle", f))
	s.Close()
	_, err = f.Write([]byte("x"))
	assert.Error(t, err, "file should be closed")
}

func TestConcurrentRegister(t *testing.T) {
	s := NewScope(nil)
	var mu sync.Mutex
	released := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Register(Func(filepath.Join("k", string(rune('a'+i%10))), func() error {
				mu.Lock()
				released++
				mu.Unlock()
				return nil
			}))
		}(i)
	}
	wg.Wait()
	s.Close()
	assert.Equal(t, 10, released)
}

// A failed task after an artifact was registered must still leave no files.
func TestFailedTaskLeavesNoArtifacts(t *testing.T) {
	dir := t.TempDir()
	run := func() error {
		s := NewScope(nil, WithTempDir(dir))
		defer s.Close()
		if _, err := s.TempFile(".pdf"); err != nil {
			return err
		}
		return errors.New("build failed")
	}
	for i := 0; i < 3; i++ {
		require.Error(t, run())
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
