package bots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jgirmay/meetingbot/internal/calendar"
	"github.com/jgirmay/meetingbot/internal/clock"
	"github.com/jgirmay/meetingbot/internal/join"
	"github.com/jgirmay/meetingbot/pkg/models"
	"github.com/jgirmay/meetingbot/pkg/repository"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 4, 13, 10, 0, 0, 0, time.UTC)

// MockCalendar is a scripted calendar gateway
type MockCalendar struct {
	mu           sync.Mutex
	meetings     []models.MeetingInfo
	errs         []error // returned, in order, before meetings
	notConnected map[string]bool
	connectErr   error
	panicNext    bool
	listCalls    int

	// With gate set, ListUpcomingEvents signals parked and waits for the
	// gate to close before answering.
	gate   chan struct{}
	parked chan struct{}
}

func (m *MockCalendar) IsConnected(ctx context.Context, workspaceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return false, m.connectErr
	}
	return !m.notConnected[workspaceID], nil
}

func (m *MockCalendar) ListUpcomingEvents(ctx context.Context, workspaceID string) ([]models.MeetingInfo, error) {
	m.mu.Lock()
	gate, parked := m.gate, m.parked
	m.mu.Unlock()
	if gate != nil {
		parked <- struct{}{}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.panicNext {
		m.panicNext = false
		panic("calendar exploded")
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return append([]models.MeetingInfo(nil), m.meetings...), nil
}

// park makes the next fetches block until the returned release is called
func (m *MockCalendar) park() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.parked = make(chan struct{}, 4)
	gate := m.gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (m *MockCalendar) waitParked(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	parked := m.parked
	m.mu.Unlock()
	select {
	case <-parked:
	case <-time.After(2 * time.Second):
		t.Fatal("calendar fetch never started")
	}
}

func (m *MockCalendar) setMeetings(meetings ...models.MeetingInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings = meetings
}

func (m *MockCalendar) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// MockExecutor records joins and leaves. With block set, Join waits for
// the channel to close.
type MockExecutor struct {
	mu      sync.Mutex
	joins   []models.MeetingInfo
	leaves  []join.Handle
	err     error
	block   chan struct{}
	entered chan string
}

func newMockExecutor() *MockExecutor {
	return &MockExecutor{entered: make(chan string, 16)}
}

func (e *MockExecutor) Join(ctx context.Context, m models.MeetingInfo, s models.BotSettings) (join.Handle, error) {
	e.mu.Lock()
	e.joins = append(e.joins, m)
	block, err := e.block, e.err
	e.mu.Unlock()

	e.entered <- m.ID
	if block != nil {
		<-block
	}
	if err != nil {
		return join.Handle{}, err
	}
	return join.Handle{ID: "h-" + m.ID, Platform: m.Platform, MeetingID: m.ID}, nil
}

func (e *MockExecutor) Leave(ctx context.Context, h join.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaves = append(e.leaves, h)
	return nil
}

func (e *MockExecutor) joinCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.joins)
}

func (e *MockExecutor) leftHandles() []join.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]join.Handle(nil), e.leaves...)
}

type harness struct {
	clock    *clock.FakeClock
	registry *repository.Registry
	calendar *MockCalendar
	executor *MockExecutor
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	registry, err := repository.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	h := &harness{
		clock:    clock.Fake(epoch),
		registry: registry,
		calendar: &MockCalendar{notConnected: map[string]bool{}},
		executor: newMockExecutor(),
	}
	h.orch = NewOrchestrator(Config{
		PollInterval:  time.Minute,
		ShutdownGrace: 30 * time.Second,
		JoinTimeout:   5 * time.Second,
		Clock:         h.clock,
	}, Dependencies{
		Calendar: h.calendar,
		Sessions: registry.BotSessionRepository,
		Settings: registry.WorkspaceBotSettingsRepository,
		Executor: h.executor,
	})
	t.Cleanup(func() { _ = h.orch.Close(context.Background()) })
	return h
}

func (h *harness) newBot(ws string, s models.BotSettings) *workspaceBot {
	return newWorkspaceBot(ws, s, h.orch.deps)
}

func (h *harness) sessions(t *testing.T, ws string) []*models.BotSession {
	t.Helper()
	sessions, err := h.registry.BotSessionRepository.ListByWorkspace(context.Background(), ws, 0)
	require.NoError(t, err)
	return sessions
}

func autoJoin(joinBefore, leaveAfter int) models.BotSettings {
	return models.BotSettings{
		Enabled:           true,
		AutoJoin:          true,
		JoinBeforeMinutes: joinBefore,
		LeaveAfterMinutes: leaveAfter,
	}
}

func zoomMeeting(id string, start time.Time, length time.Duration) models.MeetingInfo {
	return models.MeetingInfo{
		ID:        id,
		Platform:  models.PlatformZoom,
		URL:       "https://zoom.us/j/81234567890",
		Title:     "Meeting " + id,
		StartTime: start,
		EndTime:   start.Add(length),
	}
}

func waitEntered(t *testing.T, e *MockExecutor) string {
	t.Helper()
	select {
	case id := <-e.entered:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("join was never attempted")
		return ""
	}
}

var _ calendar.Gateway = (*MockCalendar)(nil)
var _ join.Executor = (*MockExecutor)(nil)
