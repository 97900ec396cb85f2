// Package sched runs cooperative, budgeted work on behalf of a host loop.
package sched

import (
	"log/slog"
	"time"
)

const (
	MinPriority     = 0
	MaxPriority     = 50
	DefaultPriority = 10
	DefaultBaseline = time.Millisecond
)

// Worker is a source of small resumable work items. Step runs exactly one item.
type Worker interface {
	Pending() bool
	Step()
}

// Stopper is implemented by workers that hold state to discard on teardown.
type Stopper interface {
	Stop()
}

// Options configures a Scheduler.
type Options struct {
	Priority int
	Baseline time.Duration
	// Safe reports whether the host can run work right now. Nil means always.
	Safe func() bool
	// Now is the clock used for budgeting. Nil means time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Scheduler interleaves workers inside a per-tick time budget. It is not safe
// for concurrent use: Tick must be called from the goroutine that owns the workers.
type Scheduler struct {
	priority int
	baseline time.Duration
	safe     func() bool
	now      func() time.Time
	logger   *slog.Logger

	workers  []Worker
	next     int
	disabled bool
	skipped  int
}

// New creates a scheduler. The priority is clamped to [MinPriority, MaxPriority].
func New(opts Options) *Scheduler {
	s := &Scheduler{
		baseline: opts.Baseline,
		safe:     opts.Safe,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if s.baseline <= 0 {
		s.baseline = DefaultBaseline
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.SetPriority(opts.Priority)
	return s
}

// Register adds a worker. Workers are served round-robin.
func (s *Scheduler) Register(w Worker) {
	s.workers = append(s.workers, w)
}

// SetPriority changes the budget multiplier.
func (s *Scheduler) SetPriority(p int) {
	s.priority = min(max(p, MinPriority), MaxPriority)
}

// Priority returns the clamped priority.
func (s *Scheduler) Priority() int {
	return s.priority
}

// Budget is the time one Tick may spend: baseline * (1 + priority).
func (s *Scheduler) Budget() time.Duration {
	return s.baseline * time.Duration(1+s.priority)
}

// Pending reports whether any worker has work.
func (s *Scheduler) Pending() bool {
	if s.disabled {
		return false
	}
	for _, w := range s.workers {
		if w.Pending() {
			return true
		}
	}
	return false
}

// Tick runs work items until the budget is spent or no worker has work. At
// least one item runs per tick when work is available, so a single slow item
// cannot starve progress. It returns the number of items run.
func (s *Scheduler) Tick() int {
	if s.disabled {
		return 0
	}
	if s.safe != nil && !s.safe() {
		s.skipped++
		return 0
	}

	start := s.now()
	budget := s.Budget()
	steps := 0
	for {
		w := s.nextPending()
		if w == nil {
			break
		}
		w.Step()
		steps++
		if s.now().Sub(start) >= budget {
			break
		}
	}
	return steps
}

// nextPending returns the next worker with work, rotating the start position.
func (s *Scheduler) nextPending() Worker {
	n := len(s.workers)
	for i := 0; i < n; i++ {
		w := s.workers[(s.next+i)%n]
		if w.Pending() {
			s.next = (s.next + i + 1) % n
			return w
		}
	}
	return nil
}

// SkippedTicks returns how many ticks were skipped because the host was not safe.
func (s *Scheduler) SkippedTicks() int {
	return s.skipped
}

// Stop disables the scheduler and tears down every worker that holds state.
func (s *Scheduler) Stop() {
	if s.disabled {
		return
	}
	s.disabled = true
	for _, w := range s.workers {
		if st, ok := w.(Stopper); ok {
			st.Stop()
		}
	}
	s.logger.Debug("scheduler stopped")
}

// Start re-enables a stopped scheduler.
func (s *Scheduler) Start() {
	s.disabled = false
}

// Disabled reports whether Stop was called.
func (s *Scheduler) Disabled() bool {
	return s.disabled
}
