package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/ignore"
	"github.com/lexandro/assetindex-mcp/watcher"
)

// verifyNoLeaks checks for leaked goroutines after every other cleanup,
// including the project close registered later.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	opt := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, opt) })
}

func startHost(t *testing.T, p *project) (*Host, context.CancelFunc, <-chan error) {
	t.Helper()
	host := NewHost(p.cache, p.newScheduler(nil), time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()
	return host, cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not stop")
	}
}

func Test_Host_IndexesBetweenRequests(t *testing.T) {
	verifyNoLeaks(t)
	p := newTestProject(t)
	host, cancel, done := startHost(t, p)
	defer waitStopped(t, done)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, host.Do(ctx, func(c *cache.Cache) {
		_, err := c.Refresh(false)
		assert.NoError(t, err)
	}))

	require.Eventually(t, func() bool {
		var idle bool
		if err := host.Do(ctx, func(c *cache.Cache) { idle = c.Ready() && !c.Pending() }); err != nil {
			return false
		}
		return idle
	}, 5*time.Second, 5*time.Millisecond)

	var users []*asset.Record
	require.NoError(t, host.Do(ctx, func(c *cache.Cache) { users = c.Graph().UsedBy(texGUID) }))
	require.Len(t, users, 1)
	assert.Equal(t, "Assets/Hero.prefab", users[0].Path)
}

func Test_Host_DoAfterStop(t *testing.T) {
	verifyNoLeaks(t)
	p := newTestProject(t)
	host, cancel, done := startHost(t, p)
	cancel()
	waitStopped(t, done)

	called := false
	err := host.Do(context.Background(), func(*cache.Cache) { called = true })
	assert.ErrorIs(t, err, errHostStopped)
	assert.False(t, called)
}

func Test_Host_DoWaitsForStartedWork(t *testing.T) {
	verifyNoLeaks(t)
	p := newTestProject(t)
	host, cancel, done := startHost(t, p)
	defer waitStopped(t, done)
	defer cancel()

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := false
	ctx, cancelReq := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- host.Do(ctx, func(*cache.Cache) {
			close(entered)
			<-release
			finished = true
		})
	}()

	<-entered
	cancelReq()
	select {
	case err := <-result:
		t.Fatalf("Do returned %v while its function was still running", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-result:
		require.NoError(t, err)
		assert.True(t, finished)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return")
	}
}

func Test_Host_DoCancelledBeforePickup(t *testing.T) {
	verifyNoLeaks(t)
	p := newTestProject(t)
	// Nothing serves requests, so the hand-off can only end through ctx.
	host := NewHost(p.cache, p.newScheduler(nil), time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := host.Do(ctx, func(*cache.Cache) { called = true })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func Test_Host_StopDiscardsQueuedWork(t *testing.T) {
	verifyNoLeaks(t)
	p := newTestProject(t)
	_, err := p.cache.Refresh(false)
	require.NoError(t, err)
	require.True(t, p.cache.Pending())

	// A frame this long never ticks before the stop.
	host := NewHost(p.cache, p.newScheduler(nil), time.Hour, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()
	cancel()
	waitStopped(t, done)

	indexed, total := p.cache.Progress()
	assert.Zero(t, indexed)
	assert.Zero(t, total)
	assert.Zero(t, p.cache.Stats().Queued)
}

func Test_applyEvents_MapsSidecarToAsset(t *testing.T) {
	p := newTestProject(t)
	q := &inlineQuerier{p: p}
	_, err := performSyncVerification(context.Background(), q)
	require.NoError(t, err)

	created := writeProjectFile(t, p.cfg.Root, "Assets/Hero2.prefab", newGUID,
		"%YAML 1.1\n  m_Texture: {fileID: 2800000, guid: "+texGUID+", type: 3}\n")

	batch := []watcher.DebouncedEvent{{Path: created + ".meta", Op: watcher.OpCreate}}
	require.NoError(t, applyEvents(context.Background(), batch, q, p))

	rec, ok := p.cache.Get(newGUID)
	require.True(t, ok)
	assert.Equal(t, "Assets/Hero2.prefab", rec.Path)
	assert.Len(t, p.cache.Graph().UsedBy(texGUID), 2)
}

func Test_applyEvents_DirectoryCreateEnumerates(t *testing.T) {
	p := newTestProject(t)
	q := &inlineQuerier{p: p}
	_, err := performSyncVerification(context.Background(), q)
	require.NoError(t, err)

	writeProjectFile(t, p.cfg.Root, "Assets/Imported/Deep/rock.png", newGUID, "rock")
	dir := filepath.Join(p.cfg.Root, "Assets", "Imported")

	batch := []watcher.DebouncedEvent{{Path: dir, Op: watcher.OpCreate}}
	require.NoError(t, applyEvents(context.Background(), batch, q, p))

	rec, ok := p.cache.Get(newGUID)
	require.True(t, ok, "files inside a created directory are found")
	assert.Equal(t, "Assets/Imported/Deep/rock.png", rec.Path)
}

func Test_applyEvents_IgnoreFileReloadsRules(t *testing.T) {
	p := newTestProject(t)
	q := &inlineQuerier{p: p}
	before := p.matcher.Generation()

	ignorePath := filepath.Join(p.cfg.Root, ignore.IgnoreFileName)
	require.NoError(t, os.WriteFile(ignorePath, []byte("Assets/hero.png\n"), 0o644))

	batch := []watcher.DebouncedEvent{{Path: ignorePath, Op: watcher.OpWrite}}
	require.NoError(t, applyEvents(context.Background(), batch, q, p))

	assert.Greater(t, p.matcher.Generation(), before)
	assert.True(t, p.matcher.IsExcluded("Assets/hero.png"))
}

func Test_applyEvents_OutsideRootsIsSkipped(t *testing.T) {
	p := newTestProject(t)
	q := &countingQuerier{}

	batch := []watcher.DebouncedEvent{
		{Path: filepath.Join(p.cfg.Root, "Library", "cache.bin"), Op: watcher.OpWrite},
		{Path: filepath.Join(p.cfg.Root, "Temp"), Op: watcher.OpCreate},
	}
	require.NoError(t, applyEvents(context.Background(), batch, q, p))
	assert.Zero(t, q.calls)
}

type countingQuerier struct{ calls int }

func (q *countingQuerier) Do(context.Context, func(*cache.Cache)) error {
	q.calls++
	return nil
}

func Test_handleWatcherEvents_StopsWhenChannelCloses(t *testing.T) {
	verifyNoLeaks(t)
	p := newTestProject(t)
	events := make(chan []watcher.DebouncedEvent)
	done := make(chan error, 1)
	go func() { done <- handleWatcherEvents(context.Background(), events, &countingQuerier{}, p) }()

	close(events)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not stop")
	}
}

func Test_project_runToCompletion(t *testing.T) {
	p := newTestProject(t)
	_, err := p.cache.Refresh(false)
	require.NoError(t, err)

	require.NoError(t, p.runToCompletion(context.Background()))
	assert.False(t, p.cache.Pending())
	assert.True(t, p.cache.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.cache.Refresh(true)
	require.NoError(t, err)
	assert.ErrorIs(t, p.runToCompletion(ctx), context.Canceled)
}
