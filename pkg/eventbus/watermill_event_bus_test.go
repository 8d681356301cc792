package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driptide/driptide/pkg/channels/gochannel"
	"github.com/driptide/driptide/pkg/events"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.ExecutionCompleted, 1)

	err := bus.Handle(events.ExecutionCompletedEvent, func(ctx context.Context, eventData any) error {
		event, ok := eventData.(*events.ExecutionCompleted)
		require.True(t, ok)

		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	completed := events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, "wf-1"),
		ExecutionID:   "exec-abc123",
		DurationMs:    1500,
		StepsRecorded: 4,
	}

	require.NoError(t, bus.Publish(ctx, "wf-1", completed))

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, "exec-abc123", event.ExecutionID)
		assert.Equal(t, int64(1500), event.DurationMs)
		assert.Equal(t, 4, event.StepsRecorded)
		assert.Equal(t, events.ExecutionCompletedEvent, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the published event")
	}
}

func TestWatermillEventBus_UnhandledTypeIsDropped(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.RateLimited, 2)

	err := bus.Handle(events.RateLimitedEvent, func(ctx context.Context, eventData any) error {
		event, ok := eventData.(*events.RateLimited)
		require.True(t, ok)

		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for step events: the message is acked and
	// dropped without disturbing the stream.
	step := events.StepCompleted{
		BaseEvent:   events.NewBaseEvent(events.StepCompletedEvent, "wf-1"),
		ExecutionID: "exec-abc123",
		NodeID:      "send-email",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", step))

	limited := events.RateLimited{
		BaseEvent: events.NewBaseEvent(events.RateLimitedEvent, "wf-1"),
		EventType: "form.submitted",
		Window:    "hour",
		Limit:     10,
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", limited))

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, "form.submitted", event.EventType)
		assert.Equal(t, "hour", event.Window)
		assert.Equal(t, 10, event.Limit)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the rate limited event")
	}

	assert.Empty(t, received)
}
