package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/channels/gochannel"
	"github.com/nodeloom/nodeloom/pkg/events"
	"github.com/nodeloom/nodeloom/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.NodeStatusChanged, 1)

	require.NoError(t, bus.Handle(events.NodeStatusChangedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.NodeStatusChanged)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	sent := events.NodeStatusChanged{
		BaseEvent: events.NewBaseEvent(events.NodeStatusChangedEvent, "wf-1"),
		NodeID:    "node_3",
		Previous:  models.NodeStatusIdle,
		Current:   models.NodeStatusRunning,
	}

	require.NoError(t, bus.Publish(t.Context(), "wf-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, "node_3", got.NodeID)
		assert.Equal(t, models.NodeStatusRunning, got.Current)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventsWithoutHandlerAreAcked(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan struct{}, 1)

	require.NoError(t, bus.Handle(events.WorkflowSavedEvent, func(context.Context, any) error {
		received <- struct{}{}

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	// No handler registered for this type; it must not wedge the stream.
	require.NoError(t, bus.Publish(t.Context(), "wf-1", events.DraftSaved{
		BaseEvent: events.NewBaseEvent(events.DraftSavedEvent, "wf-1"),
		Trigger:   "manual",
	}))

	require.NoError(t, bus.Publish(t.Context(), "wf-1", events.WorkflowSaved{
		BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent, "wf-1"),
		Name:      "demo",
	}))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("later event not delivered")
	}
}

func TestGenerateIDIsUnique(t *testing.T) {
	bus := newTestBus(t)

	a := bus.GenerateID()
	b := bus.GenerateID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
