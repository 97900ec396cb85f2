package sched

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

// countingWorker has n items; each Step advances the clock by cost.
type countingWorker struct {
	name    string
	left    int
	cost    time.Duration
	clock   *fakeClock
	trace   *[]string
	stopped bool
}

func (w *countingWorker) Pending() bool { return w.left > 0 }
func (w *countingWorker) Step() {
	w.left--
	w.clock.t = w.clock.t.Add(w.cost)
	if w.trace != nil {
		*w.trace = append(*w.trace, w.name)
	}
}
func (w *countingWorker) Stop() { w.stopped = true; w.left = 0 }

func newTestScheduler(clock *fakeClock, priority int) *Scheduler {
	return New(Options{
		Priority: priority,
		Baseline: time.Millisecond,
		Now:      clock.now,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func Test_Scheduler_BudgetFromPriority(t *testing.T) {
	clock := &fakeClock{}
	assert.Equal(t, 11*time.Millisecond, newTestScheduler(clock, 10).Budget())
	assert.Equal(t, time.Millisecond, newTestScheduler(clock, -5).Budget())
	assert.Equal(t, 51*time.Millisecond, newTestScheduler(clock, 99).Budget())
}

func Test_Scheduler_TickStopsAtBudget(t *testing.T) {
	clock := &fakeClock{}
	s := newTestScheduler(clock, 2) // 3ms budget
	w := &countingWorker{left: 10, cost: time.Millisecond, clock: clock}
	s.Register(w)

	assert.Equal(t, 3, s.Tick())
	assert.Equal(t, 7, w.left, "the tick resumes where it left off")
	assert.Equal(t, 3, s.Tick())
	assert.True(t, s.Pending())
}

func Test_Scheduler_AlwaysRunsOneItem(t *testing.T) {
	clock := &fakeClock{}
	s := newTestScheduler(clock, 0)
	w := &countingWorker{left: 2, cost: time.Second, clock: clock}
	s.Register(w)

	assert.Equal(t, 1, s.Tick())
	assert.Equal(t, 1, s.Tick())
	assert.Equal(t, 0, s.Tick())
	assert.False(t, s.Pending())
}

func Test_Scheduler_RoundRobin(t *testing.T) {
	clock := &fakeClock{}
	s := newTestScheduler(clock, 50)
	var trace []string
	s.Register(&countingWorker{name: "records", left: 3, clock: clock, trace: &trace})
	s.Register(&countingWorker{name: "heads", left: 2, clock: clock, trace: &trace})

	s.Tick()
	assert.Equal(t, []string{"records", "heads", "records", "heads", "records"}, trace)
}

func Test_Scheduler_SkipsWhileUnsafe(t *testing.T) {
	clock := &fakeClock{}
	safe := false
	s := New(Options{Now: clock.now, Safe: func() bool { return safe }})
	w := &countingWorker{left: 1, clock: clock}
	s.Register(w)

	assert.Equal(t, 0, s.Tick())
	assert.Equal(t, 1, s.SkippedTicks())
	assert.Equal(t, 1, w.left)

	safe = true
	assert.Equal(t, 1, s.Tick())
}

func Test_Scheduler_StopTearsDownWorkers(t *testing.T) {
	clock := &fakeClock{}
	s := newTestScheduler(clock, 10)
	w := &countingWorker{left: 5, clock: clock}
	s.Register(w)

	s.Stop()
	assert.True(t, w.stopped)
	assert.True(t, s.Disabled())
	assert.Equal(t, 0, s.Tick())

	s.Start()
	w.left = 1
	assert.Equal(t, 1, s.Tick())
}
