package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

func waitFor(t *testing.T, ch <-chan domain.ChangeEvent, path string, op domain.ChangeOp) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed before %s %s", op, path)
			if ev.Path == path && ev.Op == op {
				assert.Equal(t, domain.OriginEvent, ev.Origin)
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s %s", op, path)
		}
	}
}

func TestNotifier_Notify(t *testing.T) {
	dir := t.TempDir()
	n := NewNotifier(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Notify(ctx, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("scope 1"), 0o600))
	waitFor(t, ch, path, domain.ChangeCreated)

	require.NoError(t, os.WriteFile(path, []byte("scope 1 and 2"), 0o600))
	waitFor(t, ch, path, domain.ChangeModified)

	require.NoError(t, os.Remove(path))
	waitFor(t, ch, path, domain.ChangeRemoved)
}

func TestNotifier_Notify_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	n := NewNotifier(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Notify(ctx, dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// The new directory is watched once its create event is handled, so
	// retry the write until the event for the nested file arrives.
	path := filepath.Join(sub, "esg.txt")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, os.WriteFile(path, []byte("water"), 0o600))
		select {
		case ev := <-ch:
			if ev.Path == path {
				return
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatal("no event for file in new sub-directory")
}

func TestNotifier_Notify_NonExistentDir(t *testing.T) {
	n := NewNotifier(nil)
	_, err := n.Notify(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestNotifier_Notify_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := NewNotifier(nil).Notify(context.Background(), file)
	require.Error(t, err)
}

func TestNotifier_Notify_ClosesOnCancel(t *testing.T) {
	n := NewNotifier(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := n.Notify(ctx, t.TempDir())
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestHandleFsEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	hidden := filepath.Join(dir, ".a.txt")
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o600))
	missing := filepath.Join(dir, "gone.txt")

	n := NewNotifier(nil)

	tests := []struct {
		name   string
		event  fsnotify.Event
		wantOp domain.ChangeOp
		wantNo bool
	}{
		{"create", fsnotify.Event{Name: file, Op: fsnotify.Create}, domain.ChangeCreated, false},
		{"write", fsnotify.Event{Name: file, Op: fsnotify.Write}, domain.ChangeModified, false},
		{"write and chmod", fsnotify.Event{Name: file, Op: fsnotify.Write | fsnotify.Chmod}, domain.ChangeModified, false},
		{"remove", fsnotify.Event{Name: missing, Op: fsnotify.Remove}, domain.ChangeRemoved, false},
		{"rename", fsnotify.Event{Name: missing, Op: fsnotify.Rename}, domain.ChangeRemoved, false},
		{"chmod only", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, "", true},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Write}, "", true},
		{"hidden file", fsnotify.Event{Name: hidden, Op: fsnotify.Create}, "", true},
		{"created then vanished", fsnotify.Event{Name: missing, Op: fsnotify.Create}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.handleFsEvent(nil, dir, tt.event)
			if tt.wantNo {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantOp, got.Op)
			assert.Equal(t, tt.event.Name, got.Path)
			assert.Equal(t, domain.OriginEvent, got.Origin)
		})
	}
}
