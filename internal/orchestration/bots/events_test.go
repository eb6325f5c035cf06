package bots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_FiltersByWorkspace(t *testing.T) {
	bus := NewEventBus()
	mine := bus.Subscribe("ws-1", 4)
	all := bus.Subscribe("", 4)
	defer mine.Close()
	defer all.Close()

	bus.Publish(SessionEvent{Type: EventSessionJoining, WorkspaceID: "ws-2"})
	bus.Publish(SessionEvent{Type: EventSessionActive, WorkspaceID: "ws-1"})

	got := <-mine.C
	assert.Equal(t, EventSessionActive, got.Type)
	assert.Len(t, mine.C, 0)
	assert.Len(t, all.C, 2)
}

func TestEventBus_DropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("ws-1", 1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			bus.Publish(SessionEvent{Type: EventSessionJoining, WorkspaceID: "ws-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub.C, 1)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("ws-1", 1)
	require.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	bus.Publish(SessionEvent{WorkspaceID: "ws-1"})
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe("", 1)

	bus.Close()
	bus.Close()
	_, open := <-sub.C
	assert.False(t, open)
	sub.Close()

	late := bus.Subscribe("", 1)
	_, open = <-late.C
	assert.False(t, open)
	late.Close()
}
