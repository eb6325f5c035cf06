package bots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jgirmay/meetingbot/internal/calendar"
	"github.com/jgirmay/meetingbot/internal/clock"
	"github.com/jgirmay/meetingbot/internal/join"
	"github.com/jgirmay/meetingbot/internal/logging"
	"github.com/jgirmay/meetingbot/internal/orchestration/schedule"
	"github.com/jgirmay/meetingbot/pkg/models"
	"github.com/jgirmay/meetingbot/pkg/repository"
	"go.uber.org/zap"
)

// reasonJoinAbandoned fails a joining session whose bot is gone
const reasonJoinAbandoned = "join abandoned"

// storeTimeout bounds a single Session Store call made from a tick
const storeTimeout = 10 * time.Second

// dependencies shared by every bot of an orchestrator
type botDeps struct {
	calendar  calendar.Gateway
	sessions  repository.BotSessionRepository
	executor  join.Executor
	scheduler *schedule.Scheduler
	events    *EventBus
	metrics   *Metrics
	logger    *logging.Logger

	pollInterval  time.Duration
	shutdownGrace time.Duration
	joinTimeout   time.Duration
}

// workspaceBot owns the polling loop of one workspace. Only the
// Orchestrator constructs bots.
type workspaceBot struct {
	workspaceID string
	settings    models.BotSettings
	deps        botDeps
	clock       clock.Clock
	logger      *logging.Logger
	startedAt   time.Time

	mu        sync.Mutex
	task      *schedule.Task
	stopped   bool
	inFlight  map[string]models.MeetingInfo // meeting id -> attempt in progress
	lastTick  time.Time
	tickCount int64
	lastError string
}

// BotStatus describes a running bot
type BotStatus struct {
	WorkspaceID string             `json:"workspace_id"`
	Settings    models.BotSettings `json:"settings"`
	StartedAt   time.Time          `json:"started_at"`
	LastTick    *time.Time         `json:"last_tick,omitempty"`
	TickCount   int64              `json:"tick_count"`
	InFlight    int                `json:"in_flight"`
	LastError   string             `json:"last_error,omitempty"`
}

func newWorkspaceBot(workspaceID string, settings models.BotSettings, deps botDeps) *workspaceBot {
	c := deps.scheduler.Clock()
	return &workspaceBot{
		workspaceID: workspaceID,
		settings:    settings,
		deps:        deps,
		clock:       c,
		logger:      deps.logger.With(zap.String("workspace_id", workspaceID)),
		startedAt:   c.Now(),
		inFlight:    make(map[string]models.MeetingInfo),
	}
}

// initialize checks the calendar integration once and starts polling
func (b *workspaceBot) initialize(ctx context.Context) error {
	connected, err := b.deps.calendar.IsConnected(ctx, b.workspaceID)
	if err != nil {
		return fmt.Errorf("failed to check calendar connection: %w", err)
	}
	if !connected {
		return fmt.Errorf("%w: workspace %s", calendar.ErrCalendarNotConnected, b.workspaceID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return fmt.Errorf("bot for workspace %s already shut down", b.workspaceID)
	}
	b.task = b.deps.scheduler.Every(b.deps.pollInterval, b.runTick)

	b.logger.Info("Bot started",
		zap.Duration("poll_interval", b.deps.pollInterval),
		zap.Bool("auto_join", b.settings.AutoJoin),
		zap.Int("join_before_minutes", b.settings.JoinBeforeMinutes),
		zap.Int("leave_after_minutes", b.settings.LeaveAfterMinutes),
	)
	return nil
}

// shutdown stops polling and waits up to the grace period for the current
// tick to finish. Returns false if attempts were still pending. Idempotent.
func (b *workspaceBot) shutdown() bool {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return true
	}
	b.stopped = true
	task := b.task
	b.mu.Unlock()

	if task == nil {
		return true
	}
	task.Cancel()

	select {
	case <-task.Done():
		b.logger.Info("Bot stopped")
		return true
	default:
	}

	grace := b.clock.After(b.deps.shutdownGrace)
	select {
	case <-task.Done():
		b.logger.Info("Bot stopped after draining")
		return true
	case <-grace:
	}

	for _, m := range b.pendingAttempts() {
		b.logger.Warn("Join attempt still pending at shutdown",
			zap.String("meeting_id", m.ID),
			zap.String("platform", string(m.Platform)),
			zap.Duration("grace", b.deps.shutdownGrace),
		)
	}
	return false
}

func (b *workspaceBot) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

func (b *workspaceBot) status() BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BotStatus{
		WorkspaceID: b.workspaceID,
		Settings:    b.settings,
		StartedAt:   b.startedAt,
		TickCount:   b.tickCount,
		InFlight:    len(b.inFlight),
		LastError:   b.lastError,
	}
	if !b.lastTick.IsZero() {
		last := b.lastTick
		s.LastTick = &last
	}
	return s
}

func (b *workspaceBot) pendingAttempts() []models.MeetingInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := make([]models.MeetingInfo, 0, len(b.inFlight))
	for _, m := range b.inFlight {
		pending = append(pending, m)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending
}

// runTick is the scheduled entry point
func (b *workspaceBot) runTick(now time.Time) {
	b.tick(context.Background(), now)
}

func (b *workspaceBot) recordTick(now time.Time, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastTick = now
	b.tickCount++
	b.lastError = errMsg
}

// tick runs one polling pass: close out expired sessions, fetch the
// calendar, then evaluate every candidate meeting concurrently. A panic is
// logged and the loop carries on with the next tick.
func (b *workspaceBot) tick(ctx context.Context, now time.Time) {
	result := tickOK
	var errMsg string
	defer func() {
		if r := recover(); r != nil {
			result = tickPanic
			errMsg = fmt.Sprintf("panic: %v", r)
			b.logger.Error("Recovered panic in bot tick", zap.Any("panic", r), zap.Stack("stack"))
		}
		b.deps.metrics.Ticks.WithLabelValues(result).Inc()
		b.recordTick(now, errMsg)
	}()

	if err := b.sweepSessions(ctx, now); err != nil {
		result = tickStoreError
		errMsg = err.Error()
		b.logger.Error("Failed to list active sessions", zap.Error(err))
	}

	meetings, err := b.deps.calendar.ListUpcomingEvents(ctx, b.workspaceID)
	if err != nil {
		kind, _ := calendar.KindOf(err)
		if kind == "" {
			kind = calendar.KindProvider
		}
		b.deps.metrics.CalendarErrors.WithLabelValues(string(kind)).Inc()
		b.logger.Warn("Calendar fetch failed, skipping tick", zap.String("kind", string(kind)), zap.Error(err))
		result = tickCalendarError
		errMsg = err.Error()
		return
	}

	if !b.settings.AutoJoin {
		return
	}
	if b.isStopped() {
		b.logger.Debug("Bot stopped during tick, not admitting joins")
		return
	}

	var wg sync.WaitGroup
	for _, m := range meetings {
		if !m.InJoinWindow(now, b.settings) {
			continue
		}
		wg.Add(1)
		go func(m models.MeetingInfo) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Recovered panic handling meeting",
						zap.String("meeting_id", m.ID), zap.Any("panic", r), zap.Stack("stack"))
				}
			}()
			b.considerMeeting(ctx, now, m)
		}(m)
	}
	wg.Wait()
}

// sweepSessions completes active sessions past their leave deadline and
// fails joining sessions that no live attempt owns once the deadline passed
func (b *workspaceBot) sweepSessions(ctx context.Context, now time.Time) error {
	listCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	sessions, err := b.deps.sessions.ListActiveSessions(listCtx, b.workspaceID)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		if !now.After(models.LeaveDeadline(s.ScheduledEnd, b.settings)) {
			continue
		}
		switch s.Status {
		case models.SessionStatusActive:
			b.completeSession(ctx, s)
		case models.SessionStatusJoining:
			if b.isInFlight(s.MeetingID) {
				continue
			}
			b.failSession(ctx, s, reasonJoinAbandoned)
		}
	}
	return nil
}

// admit reserves a join attempt for m. It fails once shutdown has begun,
// so a stopping bot finishes admitted joins but starts no new ones.
func (b *workspaceBot) admit(m models.MeetingInfo) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	if _, ok := b.inFlight[m.ID]; ok {
		return false
	}
	b.inFlight[m.ID] = m
	return true
}

func (b *workspaceBot) release(meetingID string) {
	b.mu.Lock()
	delete(b.inFlight, meetingID)
	b.mu.Unlock()
}

func (b *workspaceBot) isInFlight(meetingID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.inFlight[meetingID]
	return ok
}

// considerMeeting creates a session and joins. A meeting that ever had a
// session is not joined again, so failed joins are not retried.
func (b *workspaceBot) considerMeeting(ctx context.Context, now time.Time, m models.MeetingInfo) {
	log := b.logger.With(zap.String("meeting_id", m.ID), zap.String("platform", string(m.Platform)))

	if !b.admit(m) {
		log.Debug("Join not admitted, bot stopping or attempt in progress")
		return
	}
	defer b.release(m.ID)

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	prior, err := b.deps.sessions.FindByMeeting(storeCtx, b.workspaceID, m.ID)
	if err != nil {
		log.Error("Failed to look up meeting sessions", zap.Error(err))
		return
	}
	if len(prior) > 0 {
		log.Debug("Meeting already has a session", zap.String("status", string(prior[len(prior)-1].Status)))
		return
	}

	session, err := b.deps.sessions.CreateSession(storeCtx, b.workspaceID, m, now)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSession) {
			log.Debug("Session already being created by another tick")
			return
		}
		log.Error("Failed to create session", zap.Error(err))
		return
	}
	b.deps.events.Publish(sessionEvent(EventSessionJoining, session, "", now))

	b.attemptJoin(ctx, session, m)
}

func (b *workspaceBot) attemptJoin(ctx context.Context, session *models.BotSession, m models.MeetingInfo) {
	log := b.logger.With(
		zap.String("meeting_id", m.ID),
		zap.String("session_id", session.ID.String()),
		zap.String("platform", string(m.Platform)),
	)

	// Shutdown does not cancel this context; an admitted bot must be recorded.
	joinCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.deps.joinTimeout)
	defer cancel()

	started := b.clock.Now()
	handle, err := b.deps.executor.Join(joinCtx, m, b.settings)
	finished := b.clock.Now()
	b.deps.metrics.JoinDuration.WithLabelValues(string(m.Platform)).Observe(finished.Sub(started).Seconds())

	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer storeCancel()

	if err != nil {
		reason := string(join.ReasonOf(err))
		if errors.Is(err, join.ErrUnsupportedPlatform) {
			reason = "unsupported_platform"
		}
		b.deps.metrics.JoinAttempts.WithLabelValues(string(m.Platform), reason).Inc()
		log.Warn("Join failed", zap.String("reason", reason), zap.Error(err))

		update := repository.SessionUpdate{EndTime: &finished, ErrorMessage: reason}
		if err := b.deps.sessions.UpdateStatus(storeCtx, session.ID, models.SessionStatusFailed, update); err != nil {
			log.Error("Failed to record join failure", zap.Error(err))
			return
		}
		b.deps.events.Publish(sessionEvent(EventSessionFailed, session, reason, finished))
		return
	}

	b.deps.metrics.JoinAttempts.WithLabelValues(string(m.Platform), "success").Inc()
	update := repository.SessionUpdate{JoinTime: &finished, BotHandle: handle.ID}
	if err := b.deps.sessions.UpdateStatus(storeCtx, session.ID, models.SessionStatusActive, update); err != nil {
		log.Error("Failed to record join, leaving meeting", zap.Error(err))
		if leaveErr := b.deps.executor.Leave(storeCtx, handle); leaveErr != nil {
			log.Warn("Failed to leave meeting", zap.Error(leaveErr))
		}
		return
	}
	log.Info("Joined meeting", zap.String("handle", handle.ID), zap.Duration("took", finished.Sub(started)))
	b.deps.events.Publish(sessionEvent(EventSessionActive, session, "", finished))
}

// completeSession issues the forced leave and records completion. The leave
// is best effort; the session completes either way.
func (b *workspaceBot) completeSession(ctx context.Context, s *models.BotSession) {
	log := b.logger.With(zap.String("meeting_id", s.MeetingID), zap.String("session_id", s.ID.String()))

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if s.BotHandle != "" {
		handle := join.Handle{ID: s.BotHandle, Platform: s.Platform, MeetingID: s.MeetingID}
		if err := b.deps.executor.Leave(storeCtx, handle); err != nil {
			log.Warn("Forced leave failed", zap.Error(err))
		}
	}

	end := b.clock.Now()
	err := b.deps.sessions.UpdateStatus(storeCtx, s.ID, models.SessionStatusCompleted, repository.SessionUpdate{EndTime: &end})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			log.Debug("Session already moved on", zap.Error(err))
			return
		}
		log.Error("Failed to complete session", zap.Error(err))
		return
	}

	b.deps.metrics.SessionsCompleted.Inc()
	log.Info("Session completed")
	b.deps.events.Publish(sessionEvent(EventSessionCompleted, s, "", end))
}

func (b *workspaceBot) failSession(ctx context.Context, s *models.BotSession, reason string) {
	log := b.logger.With(zap.String("meeting_id", s.MeetingID), zap.String("session_id", s.ID.String()))

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	end := b.clock.Now()
	update := repository.SessionUpdate{EndTime: &end, ErrorMessage: reason}
	if err := b.deps.sessions.UpdateStatus(storeCtx, s.ID, models.SessionStatusFailed, update); err != nil {
		if !errors.Is(err, repository.ErrInvalidTransition) {
			log.Error("Failed to fail session", zap.Error(err))
		}
		return
	}
	log.Warn("Session failed", zap.String("reason", reason))
	b.deps.events.Publish(sessionEvent(EventSessionFailed, s, reason, end))
}
