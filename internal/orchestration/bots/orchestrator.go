// Package bots runs one polling bot per workspace that joins meetings from the
// workspace calendar and records every attempt as a persisted session.
package bots

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jgirmay/meetingbot/internal/calendar"
	"github.com/jgirmay/meetingbot/internal/clock"
	"github.com/jgirmay/meetingbot/internal/join"
	"github.com/jgirmay/meetingbot/internal/logging"
	"github.com/jgirmay/meetingbot/internal/orchestration/schedule"
	"github.com/jgirmay/meetingbot/pkg/models"
	"github.com/jgirmay/meetingbot/pkg/repository"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval  = 60 * time.Second
	DefaultShutdownGrace = 30 * time.Second
	DefaultJoinTimeout   = 90 * time.Second
)

// Config tunes the orchestrator. Zero durations use the defaults.
type Config struct {
	PollInterval  time.Duration
	ShutdownGrace time.Duration
	JoinTimeout   time.Duration

	// Clock drives polling; nil means wall time
	Clock clock.Clock

	// Registerer receives the metrics; nil leaves them unregistered
	Registerer prometheus.Registerer
}

// Dependencies are the collaborators every bot talks to
type Dependencies struct {
	Calendar calendar.Gateway
	Sessions repository.BotSessionRepository
	Settings repository.WorkspaceBotSettingsRepository
	Executor join.Executor
	Logger   *logging.Logger
}

// Orchestrator owns the workspace -> bot registry. It is the only code path
// that creates or destroys bots.
type Orchestrator struct {
	mu     sync.RWMutex
	bots   map[string]*workspaceBot
	closed bool

	locks    *keyedMutex
	deps     botDeps
	settings repository.WorkspaceBotSettingsRepository
	events   *EventBus
	metrics  *Metrics
	logger   *logging.Logger
}

// NewOrchestrator creates an orchestrator with no running bots
func NewOrchestrator(cfg Config, d Dependencies) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(zap.String("component", "bots"))

	events := NewEventBus()
	metrics := NewMetrics(cfg.Registerer)

	return &Orchestrator{
		bots:     make(map[string]*workspaceBot),
		locks:    newKeyedMutex(),
		settings: d.Settings,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		deps: botDeps{
			calendar:      d.Calendar,
			sessions:      d.Sessions,
			executor:      d.Executor,
			scheduler:     schedule.NewScheduler(cfg.Clock),
			events:        events,
			metrics:       metrics,
			logger:        logger,
			pollInterval:  cfg.PollInterval,
			shutdownGrace: cfg.ShutdownGrace,
			joinTimeout:   cfg.JoinTimeout,
		},
	}
}

// Events returns the bus session events are published on
func (o *Orchestrator) Events() *EventBus {
	return o.events
}

// Metrics returns the orchestrator's collectors
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

func normalizeWorkspace(workspaceID string) (string, error) {
	ws := strings.TrimSpace(workspaceID)
	if ws == "" {
		return "", ErrMissingWorkspace
	}
	return ws, nil
}

// Start runs a bot for the workspace with settings, replacing any running
// bot. Disabled settings behave like Stop. Returns once the bot is
// registered; the first tick happens one poll interval later.
func (o *Orchestrator) Start(ctx context.Context, workspaceID string, settings models.BotSettings) error {
	ws, err := normalizeWorkspace(workspaceID)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if !settings.Enabled {
		return o.Stop(ctx, ws)
	}

	unlock := o.locks.Lock(ws)
	defer unlock()

	if o.isClosed() {
		return ErrClosed
	}

	old := o.take(ws)
	if old != nil {
		o.logger.Info("Replacing running bot", zap.String("workspace_id", ws))
		o.shutdownBot(old)
	}

	bot := newWorkspaceBot(ws, settings, o.deps)
	if err := bot.initialize(ctx); err != nil {
		if old != nil {
			// The previous bot is gone; restore must not bring it back.
			o.events.Publish(SessionEvent{Type: EventBotStopped, WorkspaceID: ws, Timestamp: bot.clock.Now()})
			if o.settings != nil {
				if serr := o.settings.SetEnabled(ctx, ws, false); serr != nil {
					o.logger.Warn("Failed to persist disabled settings", zap.String("workspace_id", ws), zap.Error(serr))
				}
			}
		}
		return err
	}

	if !o.register(ws, bot) {
		bot.shutdown()
		return ErrClosed
	}

	if o.settings != nil {
		if err := o.settings.Save(ctx, ws, settings); err != nil {
			o.logger.Warn("Failed to persist bot settings", zap.String("workspace_id", ws), zap.Error(err))
		}
	}
	o.events.Publish(SessionEvent{Type: EventBotStarted, WorkspaceID: ws, Timestamp: bot.startedAt})
	return nil
}

// Stop shuts down the workspace bot, if any, and records the workspace as
// disabled. Stopping a stopped workspace is a no-op.
func (o *Orchestrator) Stop(ctx context.Context, workspaceID string) error {
	ws, err := normalizeWorkspace(workspaceID)
	if err != nil {
		return err
	}

	unlock := o.locks.Lock(ws)
	defer unlock()

	if bot := o.take(ws); bot != nil {
		o.shutdownBot(bot)
		o.events.Publish(SessionEvent{Type: EventBotStopped, WorkspaceID: ws, Timestamp: bot.clock.Now()})
	}

	if o.settings != nil {
		if err := o.settings.SetEnabled(ctx, ws, false); err != nil {
			o.logger.Warn("Failed to persist disabled settings", zap.String("workspace_id", ws), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

// take removes and returns the registered bot. Callers hold the workspace lock.
func (o *Orchestrator) take(ws string) *workspaceBot {
	o.mu.Lock()
	defer o.mu.Unlock()
	bot, ok := o.bots[ws]
	if !ok {
		return nil
	}
	delete(o.bots, ws)
	o.metrics.ActiveBots.Dec()
	return bot
}

func (o *Orchestrator) register(ws string, bot *workspaceBot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.bots[ws] = bot
	o.metrics.ActiveBots.Inc()
	return true
}

func (o *Orchestrator) shutdownBot(bot *workspaceBot) {
	if !bot.shutdown() {
		o.logger.Warn("Bot shutdown timed out with attempts pending", zap.String("workspace_id", bot.workspaceID))
	}
}

// IsRunning reports whether a bot is registered for the workspace
func (o *Orchestrator) IsRunning(workspaceID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.bots[strings.TrimSpace(workspaceID)]
	return ok
}

// BotCount returns the number of registered bots
func (o *Orchestrator) BotCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.bots)
}

// ListBots returns the status of every running bot ordered by workspace
func (o *Orchestrator) ListBots() []BotStatus {
	o.mu.RLock()
	bots := make([]*workspaceBot, 0, len(o.bots))
	for _, b := range o.bots {
		bots = append(bots, b)
	}
	o.mu.RUnlock()

	statuses := make([]BotStatus, 0, len(bots))
	for _, b := range bots {
		statuses = append(statuses, b.status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].WorkspaceID < statuses[j].WorkspaceID })
	return statuses
}

// ListActiveSessions returns joining and active sessions from the store.
// No running bot is required.
func (o *Orchestrator) ListActiveSessions(ctx context.Context, workspaceID string) ([]*models.BotSession, error) {
	ws, err := normalizeWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	return o.deps.sessions.ListActiveSessions(ctx, ws)
}

// ListSessions returns session history, newest first
func (o *Orchestrator) ListSessions(ctx context.Context, workspaceID string, limit int) ([]*models.BotSession, error) {
	ws, err := normalizeWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	return o.deps.sessions.ListByWorkspace(ctx, ws, limit)
}

// GetSession returns a session of the workspace
func (o *Orchestrator) GetSession(ctx context.Context, workspaceID string, id uuid.UUID) (*models.BotSession, error) {
	ws, err := normalizeWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	session, err := o.deps.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.WorkspaceID != ws {
		return nil, fmt.Errorf("%w: session %s in workspace %s", repository.ErrNotFound, id, ws)
	}
	return session, nil
}

// AttachArtifacts stores post-meeting artifacts on a session of the workspace
func (o *Orchestrator) AttachArtifacts(ctx context.Context, workspaceID string, id uuid.UUID, artifacts repository.Artifacts) (*models.BotSession, error) {
	if _, err := o.GetSession(ctx, workspaceID, id); err != nil {
		return nil, err
	}
	if err := o.deps.sessions.AttachArtifacts(ctx, id, artifacts); err != nil {
		return nil, err
	}
	return o.deps.sessions.GetByID(ctx, id)
}

// Restore starts a bot for every workspace whose persisted settings are
// enabled. Workspaces that fail to start are logged and skipped.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	if o.settings == nil {
		return 0, nil
	}
	rows, err := o.settings.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list enabled workspaces: %w", err)
	}

	started := 0
	for _, row := range rows {
		if err := o.Start(ctx, row.WorkspaceID, row.Settings()); err != nil {
			o.logger.Warn("Failed to restore bot", zap.String("workspace_id", row.WorkspaceID), zap.Error(err))
			continue
		}
		started++
	}
	o.logger.Info("Restored bots", zap.Int("started", started), zap.Int("enabled", len(rows)))
	return started, nil
}

// Close shuts every bot down concurrently and rejects later starts.
// Persisted settings are left as they are so Restore brings the bots back.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	workspaces := make([]string, 0, len(o.bots))
	for ws := range o.bots {
		workspaces = append(workspaces, ws)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, ws := range workspaces {
		wg.Add(1)
		go func(ws string) {
			defer wg.Done()
			unlock := o.locks.Lock(ws)
			defer unlock()
			if bot := o.take(ws); bot != nil {
				o.shutdownBot(bot)
			}
		}(ws)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("orchestrator close interrupted: %w", ctx.Err())
	}

	o.events.Close()
	o.logger.Info("Orchestrator closed", zap.Int("bots", len(workspaces)))
	return nil
}
