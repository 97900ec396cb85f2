package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type dirIgnorer struct{ name string }

func (d dirIgnorer) ShouldIgnoreDir(p string) bool { return filepath.Base(p) == d.name }
func (d dirIgnorer) ShouldIgnore(p string) bool {
	return strings.Contains(filepath.ToSlash(p), "/"+d.name+"/")
}

func startWatcher(t *testing.T, root string) (*Watcher, context.CancelFunc, chan error) {
	t.Helper()
	w, err := NewWatcher(root, dirIgnorer{name: "Library"}, 20*time.Millisecond,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return w, cancel, done
}

func collect(t *testing.T, w *Watcher, want string) []DebouncedEvent {
	t.Helper()
	var all []DebouncedEvent
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch := <-w.Events():
			all = append(all, batch...)
			for _, e := range batch {
				if e.Path == want {
					return all
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %v", want, all)
			return nil
		}
	}
}

func Test_Watcher_ReportsFilesAndDirectories(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Assets"), 0o755))
	w, cancel, done := startWatcher(t, root)

	file := filepath.Join(root, "Assets", "hero.png")
	require.NoError(t, os.WriteFile(file, []byte("png"), 0o644))
	collect(t, w, file)

	dir := filepath.Join(root, "Assets", "Sprites")
	require.NoError(t, os.Mkdir(dir, 0o755))
	events := collect(t, w, dir)
	assert.Equal(t, OpCreate, events[len(events)-1].Op)

	// The new directory is watched as well.
	nested := filepath.Join(dir, "idle.png")
	require.NoError(t, os.WriteFile(nested, []byte("png"), 0o644))
	collect(t, w, nested)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, w.Close())
}

func Test_Watcher_SkipsIgnoredDirectories(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Library", "cache"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Assets"), 0o755))
	w, cancel, done := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "Library", "cache", "x.bin"), []byte("x"), 0o644))
	marker := filepath.Join(root, "Assets", "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("m"), 0o644))

	for _, e := range collect(t, w, marker) {
		assert.NotContains(t, e.Path, "Library")
	}

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, w.Close())
}

func Test_Watcher_CloseEndsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, _, done := startWatcher(t, t.TempDir())
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
