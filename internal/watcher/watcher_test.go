package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, paths []string) (<-chan []string, context.CancelFunc, <-chan error) {
	t.Helper()
	changes := make(chan []string, 8)
	w := New(paths, func(changed []string) { changes <- changed }).WithDebounce(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	select {
	case <-w.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("watch failed: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("watcher not ready")
	}
	t.Cleanup(cancel)
	return changes, cancel, done
}

func next(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	return nil
}

func TestWatcher_DebouncesFileWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "inv.csv")
	other := filepath.Join(dir, "notes.csv")
	require.NoError(t, os.WriteFile(file, []byte("sites;id\n"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x\n"), 0o644))

	changes, cancel, done := start(t, []string{file})
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(other, []byte("y\n"), 0o644))
		require.NoError(t, os.WriteFile(file, []byte("sites;id\n;1\n"), 0o644))
	}
	abs, err := filepath.Abs(file)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, next(t, changes))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcher_DirectoryPicksUpNewCSV(t *testing.T) {
	dir := t.TempDir()
	changes, _, _ := start(t, []string{dir})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "racks.csv"), []byte("racks;id\n"), 0o644))

	got := next(t, changes)
	require.Len(t, got, 1)
	assert.Equal(t, "racks.csv", filepath.Base(got[0]))
}
