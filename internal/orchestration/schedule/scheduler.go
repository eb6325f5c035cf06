// Package schedule runs periodic work as cancellable tasks on a clock.Clock
package schedule

import (
	"sync"
	"time"

	"github.com/jgirmay/meetingbot/internal/clock"
)

// Scheduler creates periodic tasks driven by a clock
type Scheduler struct {
	clock clock.Clock
}

// NewScheduler creates a scheduler. A nil clock uses wall time.
func NewScheduler(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{clock: c}
}

// Clock returns the time source tasks run on
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Task is a handle to a running periodic job
type Task struct {
	ticker    *clock.Ticker
	closeOnce sync.Once
	closeChan chan struct{}
	done      chan struct{}
}

// Every runs fn once per interval, starting one interval from now. Runs never
// overlap; ticks that arrive while fn is still running are dropped.
func (s *Scheduler) Every(interval time.Duration, fn func(now time.Time)) *Task {
	t := &Task{
		ticker:    s.clock.NewTicker(interval),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.loop(fn)
	return t
}

func (t *Task) loop(fn func(now time.Time)) {
	defer close(t.done)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.closeChan:
			return
		case now := <-t.ticker.C:
			// A tick and a cancel can be ready together; cancel wins.
			select {
			case <-t.closeChan:
				return
			default:
			}
			fn(now)
		}
	}
}

// Cancel stops further runs. A run already in progress is not interrupted.
// Safe to call more than once.
func (t *Task) Cancel() {
	t.closeOnce.Do(func() {
		close(t.closeChan)
		t.ticker.Stop()
	})
}

// Done is closed once the task has been cancelled and any in-progress run
// has returned
func (t *Task) Done() <-chan struct{} {
	return t.done
}
