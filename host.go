package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/lexandro/assetindex-mcp/cache"
	"github.com/lexandro/assetindex-mcp/sched"
)

var errHostStopped = errors.New("asset cache host stopped")

type hostRequest struct {
	fn   func(*cache.Cache)
	done chan struct{}
}

// Host owns the cache. Scheduler ticks and submitted closures run on the
// goroutine that calls Run, never concurrently, so a closure always sees the
// cache between two work items.
type Host struct {
	cache     *cache.Cache
	scheduler *sched.Scheduler
	frame     time.Duration
	logger    *slog.Logger

	requests    chan hostRequest
	stopped     chan struct{}
	progressLog rate.Sometimes
	wasPending  bool
}

// NewHost creates a host that ticks the scheduler once per frame.
func NewHost(c *cache.Cache, scheduler *sched.Scheduler, frame time.Duration, logger *slog.Logger) *Host {
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	return &Host{
		cache:       c,
		scheduler:   scheduler,
		frame:       frame,
		logger:      logger,
		requests:    make(chan hostRequest),
		stopped:     make(chan struct{}),
		progressLog: rate.Sometimes{Interval: 2 * time.Second},
	}
}

// Do runs fn on the host goroutine and waits for it to return. ctx only
// bounds the wait for the host to pick fn up; once fn has started, Do returns
// after it finishes, so the caller never reads state fn is still writing.
func (h *Host) Do(ctx context.Context, fn func(*cache.Cache)) error {
	req := hostRequest{fn: fn, done: make(chan struct{})}
	select {
	case h.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return errHostStopped
	}
	<-req.done
	return nil
}

// Run serves requests and ticks until ctx is done. On exit the scheduler is
// stopped, which discards queued work and aborts any duplicate scan.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.frame)
	defer ticker.Stop()
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.scheduler.Stop()
			h.logger.Info("host stopped", "skippedTicks", h.scheduler.SkippedTicks())
			return nil

		case req := <-h.requests:
			req.fn(h.cache)
			close(req.done)

		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Host) tick() {
	steps := h.scheduler.Tick()
	pending := h.scheduler.Pending()
	if steps > 0 && pending {
		h.progressLog.Do(func() {
			done, total := h.cache.Progress()
			h.logger.Info("indexing", "done", done, "total", total, "budget", h.scheduler.Budget())
		})
	}
	if h.wasPending && !pending {
		stats := h.cache.Stats()
		h.logger.Info("cache up to date", "records", stats.Records, "missing", stats.Missing, "edges", stats.Edges)
	}
	h.wasPending = pending
}
