package bots

import (
	"context"
	"testing"
	"time"

	"github.com/jgirmay/meetingbot/internal/calendar"
	"github.com/jgirmay/meetingbot/internal/join"
	"github.com/jgirmay/meetingbot/pkg/models"
	"github.com/jgirmay/meetingbot/pkg/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_JoinsMeetingInWindow(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(90*time.Second), 30*time.Minute))

	sub := h.orch.Events().Subscribe("ws-1", 8)
	defer sub.Close()

	bot.tick(context.Background(), epoch)

	sessions := h.sessions(t, "ws-1")
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "m-1", s.MeetingID)
	assert.Equal(t, models.SessionStatusActive, s.Status)
	assert.Equal(t, "h-m-1", s.BotHandle)
	require.NotNil(t, s.JoinTime)
	assert.Nil(t, s.EndTime)

	first := <-sub.C
	second := <-sub.C
	assert.Equal(t, EventSessionJoining, first.Type)
	assert.Equal(t, models.SessionStatusJoining, first.Status)
	assert.Equal(t, EventSessionActive, second.Type)
	assert.Equal(t, s.ID.String(), second.SessionID)

	m := h.orch.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JoinAttempts.WithLabelValues("zoom", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues(tickOK)))
}

func TestTick_MeetingOutsideWindowIsSkipped(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	h.calendar.setMeetings(
		zoomMeeting("later", epoch.Add(10*time.Minute), 30*time.Minute),
		zoomMeeting("started", epoch.Add(-time.Second), 30*time.Minute),
	)

	bot.tick(context.Background(), epoch)

	assert.Empty(t, h.sessions(t, "ws-1"))
	assert.Equal(t, 0, h.executor.joinCount())
}

func TestTick_WindowBoundsAreInclusive(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	h.calendar.setMeetings(
		zoomMeeting("at-window-start", epoch.Add(2*time.Minute), time.Hour),
		zoomMeeting("at-start", epoch, time.Hour),
	)

	bot.tick(context.Background(), epoch)

	assert.Len(t, h.sessions(t, "ws-1"), 2)
}

func TestTick_JoinFailureIsTerminalAndNotRetried(t *testing.T) {
	h := newHarness(t)
	h.executor.err = join.Failed(join.ReasonTimeout, context.DeadlineExceeded)
	bot := h.newBot("ws-1", autoJoin(5, 0))
	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(3*time.Minute), 30*time.Minute))

	bot.tick(context.Background(), epoch)

	sessions := h.sessions(t, "ws-1")
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, models.SessionStatusFailed, s.Status)
	assert.Equal(t, "timeout", s.ErrorMessage)
	require.NotNil(t, s.EndTime)

	// Still inside the join window, but the meeting already has a session.
	bot.tick(context.Background(), epoch.Add(time.Minute))

	assert.Equal(t, 1, h.executor.joinCount())
	assert.Len(t, h.sessions(t, "ws-1"), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.orch.Metrics().JoinAttempts.WithLabelValues("zoom", "timeout")))
}

func TestTick_UnsupportedPlatformFailsSession(t *testing.T) {
	h := newHarness(t)
	h.executor.err = join.ErrUnsupportedPlatform
	bot := h.newBot("ws-1", autoJoin(2, 0))
	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(time.Minute), time.Hour))

	bot.tick(context.Background(), epoch)

	sessions := h.sessions(t, "ws-1")
	require.Len(t, sessions, 1)
	assert.Equal(t, "unsupported_platform", sessions[0].ErrorMessage)
}

func TestTick_CalendarFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.calendar.errs = []error{&calendar.UnavailableError{Kind: calendar.KindRateLimited}}
	bot := h.newBot("ws-1", autoJoin(2, 0))
	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(time.Minute), time.Hour))

	assert.NotPanics(t, func() { bot.tick(context.Background(), epoch) })
	assert.Empty(t, h.sessions(t, "ws-1"))

	status := bot.status()
	assert.Contains(t, status.LastError, "rate_limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.orch.Metrics().CalendarErrors.WithLabelValues("rate_limited")))

	bot.tick(context.Background(), epoch.Add(30*time.Second))
	assert.Len(t, h.sessions(t, "ws-1"), 1)
	assert.Empty(t, bot.status().LastError)
	assert.Equal(t, int64(2), bot.status().TickCount)
}

func TestTick_AutoJoinDisabled(t *testing.T) {
	h := newHarness(t)
	settings := autoJoin(2, 0)
	settings.AutoJoin = false
	bot := h.newBot("ws-1", settings)
	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(time.Minute), time.Hour))

	bot.tick(context.Background(), epoch)

	assert.Empty(t, h.sessions(t, "ws-1"))
	assert.Equal(t, 1, h.calendar.calls())
}

func TestTick_OverlappingTicksJoinOnce(t *testing.T) {
	h := newHarness(t)
	h.executor.block = make(chan struct{})
	bot := h.newBot("ws-1", autoJoin(2, 0))
	meeting := zoomMeeting("m-1", epoch.Add(time.Minute), time.Hour)
	h.calendar.setMeetings(meeting)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		bot.tick(context.Background(), epoch)
	}()
	waitEntered(t, h.executor)

	// A replacement bot ticking while the first attempt is in flight.
	other := h.newBot("ws-1", autoJoin(2, 0))
	other.tick(context.Background(), epoch.Add(time.Second))

	_, err := h.registry.BotSessionRepository.CreateSession(context.Background(), "ws-1", meeting, epoch)
	assert.ErrorIs(t, err, repository.ErrDuplicateSession)

	close(h.executor.block)
	<-firstDone

	assert.Equal(t, 1, h.executor.joinCount())
	sessions := h.sessions(t, "ws-1")
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusActive, sessions[0].Status)
}

func TestTick_StoppedBotAdmitsNoJoins(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(time.Minute), time.Hour))

	require.True(t, bot.shutdown())
	bot.tick(context.Background(), epoch)

	assert.Equal(t, 1, h.calendar.calls())
	assert.Equal(t, 0, h.executor.joinCount())
	assert.Empty(t, h.sessions(t, "ws-1"))
}

func TestAdmit_RejectsAfterShutdown(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	m := zoomMeeting("m-1", epoch.Add(time.Minute), time.Hour)

	require.True(t, bot.admit(m))
	assert.False(t, bot.admit(m), "second attempt for the same meeting")

	bot.shutdown()
	bot.release(m.ID)
	assert.False(t, bot.admit(m))
	assert.Empty(t, bot.pendingAttempts())
}

func TestTick_MeetingsProcessedIndependently(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))

	// An existing active session makes m-dup ineligible without affecting m-ok.
	dup := zoomMeeting("m-dup", epoch.Add(time.Minute), time.Hour)
	_, err := h.registry.BotSessionRepository.CreateSession(context.Background(), "ws-1", dup, epoch.Add(-time.Minute))
	require.NoError(t, err)
	h.calendar.setMeetings(dup, zoomMeeting("m-ok", epoch.Add(time.Minute), time.Hour))

	bot.tick(context.Background(), epoch)

	assert.Equal(t, 1, h.executor.joinCount())
	assert.Len(t, h.sessions(t, "ws-1"), 2)
}

func TestTick_CompletesExpiredActiveSessions(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 5))
	repo := h.registry.BotSessionRepository
	ctx := context.Background()

	expired, err := repo.CreateSession(ctx, "ws-1", zoomMeeting("old", epoch.Add(-time.Hour), 50*time.Minute), epoch.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, expired.ID, models.SessionStatusActive, repository.SessionUpdate{BotHandle: "h-old"}))

	// Ends 5 minutes ago: exactly at the leave deadline, so not yet expired.
	edge, err := repo.CreateSession(ctx, "ws-1", zoomMeeting("edge", epoch.Add(-35*time.Minute), 30*time.Minute), epoch.Add(-35*time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, edge.ID, models.SessionStatusActive, repository.SessionUpdate{BotHandle: "h-edge"}))

	bot.tick(ctx, epoch)

	got, err := repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	require.NotNil(t, got.EndTime)

	got, err = repo.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, got.Status)

	leaves := h.executor.leftHandles()
	require.Len(t, leaves, 1)
	assert.Equal(t, "h-old", leaves[0].ID)
	assert.Equal(t, models.PlatformZoom, leaves[0].Platform)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.orch.Metrics().SessionsCompleted))

	bot.tick(ctx, epoch.Add(time.Minute))
	got, err = repo.GetByID(ctx, edge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
}

func TestTick_FailsAbandonedJoiningSession(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	repo := h.registry.BotSessionRepository
	ctx := context.Background()

	stale, err := repo.CreateSession(ctx, "ws-1", zoomMeeting("stale", epoch.Add(-2*time.Hour), time.Hour), epoch.Add(-2*time.Hour))
	require.NoError(t, err)
	fresh, err := repo.CreateSession(ctx, "ws-1", zoomMeeting("fresh", epoch.Add(-10*time.Minute), time.Hour), epoch.Add(-10*time.Minute))
	require.NoError(t, err)

	bot.tick(ctx, epoch)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, got.Status)
	assert.Equal(t, reasonJoinAbandoned, got.ErrorMessage)

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusJoining, got.Status)
}

func TestRunTick_RecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.calendar.panicNext = true
	bot := h.newBot("ws-1", autoJoin(2, 0))

	assert.NotPanics(t, func() { bot.runTick(epoch) })
	assert.Equal(t, 1.0, testutil.ToFloat64(h.orch.Metrics().Ticks.WithLabelValues(tickPanic)))
	assert.Contains(t, bot.status().LastError, "calendar exploded")

	h.calendar.setMeetings(zoomMeeting("m-1", epoch.Add(2*time.Minute), time.Hour))
	bot.runTick(epoch.Add(time.Minute))
	assert.Len(t, h.sessions(t, "ws-1"), 1)
}

func TestShutdown_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	bot := h.newBot("ws-1", autoJoin(2, 0))
	require.NoError(t, bot.initialize(context.Background()))

	assert.True(t, bot.shutdown())
	assert.True(t, bot.shutdown())
	assert.True(t, bot.isStopped())

	err := bot.initialize(context.Background())
	assert.Error(t, err)
}
