package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

// waitFor consumes events until one matches kind and op. Intermediate events
// can appear when a write lands across two debounce windows.
func waitFor(t *testing.T, events <-chan Event, kind Kind, op Op) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-events:
			require.True(t, ok, "events channel closed")
			if event.Kind == kind && event.Op == op {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, op)
			return Event{}
		}
	}
}

func TestWatcherReportsCommentChanges(t *testing.T) {
	store, dir := newTestStore(t)
	watcher, err := NewWatcher(store, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	path := filepath.Join(dir, "comments.md")
	require.NoError(t, os.WriteFile(path, []byte("[CHANGES_REQUIRED]"), 0o644))
	event := waitFor(t, watcher.Events(), KindComments, OpCreate)
	require.Equal(t, path, event.Path)

	require.NoError(t, os.WriteFile(path, []byte("[APPROVED]"), 0o644))
	waitFor(t, watcher.Events(), KindComments, OpModify)

	require.NoError(t, os.Remove(path))
	waitFor(t, watcher.Events(), KindComments, OpDelete)
}

func TestWatcherReportsPlanAmongUnrelatedWrites(t *testing.T) {
	store, dir := newTestStore(t)
	watcher, err := NewWatcher(store, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.md"), []byte("1. step"), 0o644))
	event := waitFor(t, watcher.Events(), KindPlan, OpCreate)
	require.Equal(t, filepath.Join(dir, "plan.md"), event.Path)
}

func TestWatcherClosesEventsOnCancel(t *testing.T) {
	store, _ := newTestStore(t)
	watcher, err := NewWatcher(store)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()
	cancel()
	select {
	case _, ok := <-watcher.Events():
		require.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestWatcherReleasedWhenStartFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	store := NewStore(filepath.Join(blocker, "plan.md"), filepath.Join(blocker, "comments.md"))

	watcher, err := NewWatcher(store)
	require.NoError(t, err)
	require.Error(t, watcher.Start(context.Background()))

	_, ok := <-watcher.Events()
	require.False(t, ok, "events channel should be closed")
	require.ErrorIs(t, watcher.fsw.Add(dir), fsnotify.ErrClosed)
	require.NoError(t, watcher.Stop())
}
