package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcher_TriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	w, err := NewWatcher(20*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	abs, err := w.Watch(path)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, w.Paths())

	changed := make(chan string, 4)
	w.OnChange = func(_ context.Context, p string) error {
		changed <- p
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the loop start before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, abs, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	w, err := NewWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = w.Watch(path)
	require.NoError(t, err)

	changed := make(chan string, 4)
	w.OnChange = func(_ context.Context, p string) error {
		changed <- p
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644))

	select {
	case p := <-changed:
		t.Fatalf("unexpected change for %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_HandlerErrorsAreReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	w, err := NewWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = w.Watch(path)
	require.NoError(t, err)

	errs := make(chan error, 4)
	w.OnChange = func(context.Context, string) error { return errors.New("missing column") }
	w.OnError = func(_ string, err error) { errs <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o644))

	select {
	case err := <-errs:
		assert.EqualError(t, err, "missing column")
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestWatcher_RunWaitsForRunningHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	w, err := NewWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	_, err = w.Watch(path)
	require.NoError(t, err)

	started := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool
	w.OnChange = func(ctx context.Context, _ string) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, finished.Load(), "Run returned while the handler was still running")
}

func TestWatch_MissingFile(t *testing.T) {
	w, err := NewWatcher(0, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Watch(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
