package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jgirmay/meetingbot/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func waitFor(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run")
		return time.Time{}
	}
}

func TestEvery_FirstRunAfterOneInterval(t *testing.T) {
	fake := clock.Fake(epoch)
	runs := make(chan time.Time, 4)

	task := NewScheduler(fake).Every(time.Minute, func(now time.Time) { runs <- now })
	defer task.Cancel()

	fake.Advance(59 * time.Second)
	select {
	case <-runs:
		t.Fatal("ran before the first interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(time.Second)
	assert.Equal(t, epoch.Add(time.Minute), waitFor(t, runs))

	fake.Advance(time.Minute)
	assert.Equal(t, epoch.Add(2*time.Minute), waitFor(t, runs))
}

func TestCancel_StopsFurtherRuns(t *testing.T) {
	fake := clock.Fake(epoch)
	var count atomic.Int32

	task := NewScheduler(fake).Every(time.Second, func(time.Time) { count.Add(1) })
	task.Cancel()
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish after cancel")
	}

	fake.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
	assert.Equal(t, 0, fake.PendingCount())
}

func TestCancel_DoesNotInterruptRunningJob(t *testing.T) {
	fake := clock.Fake(epoch)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	task := NewScheduler(fake).Every(time.Second, func(time.Time) {
		close(started)
		<-release
		finished.Store(true)
	})

	fake.Advance(time.Second)
	<-started

	task.Cancel()
	select {
	case <-task.Done():
		t.Fatal("done closed while job still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
	assert.True(t, finished.Load())
}

func TestEvery_RunsNeverOverlap(t *testing.T) {
	fake := clock.Fake(epoch)
	release := make(chan struct{})
	entered := make(chan struct{}, 8)
	var running, maxRunning atomic.Int32

	task := NewScheduler(fake).Every(time.Second, func(time.Time) {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		entered <- struct{}{}
		<-release
		running.Add(-1)
	})
	defer task.Cancel()

	fake.Advance(time.Second)
	<-entered
	// Ticks while the first run is blocked are coalesced or dropped.
	fake.Advance(5 * time.Second)
	close(release)

	<-entered
	require.Equal(t, int32(1), maxRunning.Load())
}

func TestNewScheduler_DefaultsToRealClock(t *testing.T) {
	s := NewScheduler(nil)
	require.NotNil(t, s.Clock())
	assert.WithinDuration(t, time.Now(), s.Clock().Now(), time.Second)
}
