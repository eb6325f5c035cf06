package bots

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jgirmay/meetingbot/pkg/models"
)

// EventType names a session lifecycle event
type EventType string

const (
	EventSessionJoining   EventType = "session.joining"
	EventSessionActive    EventType = "session.active"
	EventSessionFailed    EventType = "session.failed"
	EventSessionCompleted EventType = "session.completed"
	EventBotStarted       EventType = "bot.started"
	EventBotStopped       EventType = "bot.stopped"
)

// SessionEvent is published whenever a bot changes a session or starts/stops
type SessionEvent struct {
	Type        EventType            `json:"type"`
	WorkspaceID string               `json:"workspace_id"`
	SessionID   string               `json:"session_id,omitempty"`
	MeetingID   string               `json:"meeting_id,omitempty"`
	Status      models.SessionStatus `json:"status,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

func sessionEvent(t EventType, s *models.BotSession, reason string, at time.Time) SessionEvent {
	return SessionEvent{
		Type:        t,
		WorkspaceID: s.WorkspaceID,
		SessionID:   s.ID.String(),
		MeetingID:   s.MeetingID,
		Status:      statusForEvent(t, s.Status),
		Reason:      reason,
		Timestamp:   at,
	}
}

func statusForEvent(t EventType, fallback models.SessionStatus) models.SessionStatus {
	switch t {
	case EventSessionJoining:
		return models.SessionStatusJoining
	case EventSessionActive:
		return models.SessionStatusActive
	case EventSessionFailed:
		return models.SessionStatusFailed
	case EventSessionCompleted:
		return models.SessionStatusCompleted
	}
	return fallback
}

// EventBus fans session events out to subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	closed      bool
}

// Subscription receives events for one workspace, or all when the
// workspace is empty
type Subscription struct {
	C <-chan SessionEvent

	id          string
	workspaceID string
	ch          chan SessionEvent
	bus         *EventBus
	once        sync.Once
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]*Subscription)}
}

// Subscribe registers a subscriber with the given buffer size
func (b *EventBus) Subscribe(workspaceID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan SessionEvent, buffer)
	sub := &Subscription{
		C:           ch,
		id:          uuid.New().String(),
		workspaceID: workspaceID,
		ch:          ch,
		bus:         b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subscribers[sub.id] = sub
	return sub
}

// Publish delivers e to every matching subscriber without blocking
func (b *EventBus) Publish(e SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if sub.workspaceID != "" && sub.workspaceID != e.WorkspaceID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Buffer full, skip event
		}
	}
}

// SubscriberCount returns the number of live subscriptions
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscription; later publishes are ignored
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subscribers[s.id]; ok {
			delete(s.bus.subscribers, s.id)
			close(s.ch)
		}
	})
}
