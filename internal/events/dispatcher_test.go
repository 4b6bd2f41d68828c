package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("sink down")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TargetID: "t1"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcherSurvivesPanicsAndStampsEvents(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var seen Event
	d.Subscribe(EventUserCreated, func(context.Context, Event) error {
		panic("boom")
	})
	d.Subscribe(EventUserCreated, func(_ context.Context, e Event) error {
		seen = e
		return nil
	})

	assert.NotPanics(t, func() {
		_ = d.Publish(context.Background(), Event{Type: EventUserCreated, TargetID: "u1"})
	})
	assert.NotEmpty(t, seen.ID)
	assert.False(t, seen.Timestamp.IsZero())
	assert.Equal(t, "u1", seen.TargetID)
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var handlerErr error
	d.Subscribe(EventChatMessageSent, func(ctx context.Context, _ Event) error {
		handlerErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Publish(ctx, Event{Type: EventChatMessageSent})
	assert.NoError(t, handlerErr)
}
