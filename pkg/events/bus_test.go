package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishAndWaitDeliversToAllHandlers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	got := make(chan string, 2)
	bus.Subscribe(EventPaymentSettled, func(ctx context.Context, e Event) error {
		got <- "first:" + e.Subject
		return nil
	})
	bus.Subscribe(EventPaymentSettled, func(ctx context.Context, e Event) error {
		got <- "second:" + e.Subject
		return nil
	})

	evt := NewEvent(EventPaymentSettled, "pay-123", nil)
	require.NoError(t, bus.PublishAndWait(context.Background(), evt))

	seen := map[string]bool{<-got: true, <-got: true}
	assert.True(t, seen["first:pay-123"])
	assert.True(t, seen["second:pay-123"])
}

func TestPublishAndWaitReturnsHandlerError(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Subscribe(EventPaymentFailed, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})

	err := bus.PublishAndWait(context.Background(), NewEvent(EventPaymentFailed, "pay-1", nil))
	assert.EqualError(t, err, "boom")
}

func TestPublishNoHandlersIsNoop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Publish(context.Background(), NewEvent(EventPaymentExpired, "pay-1", nil))
}

func TestSubscribeAuditCoversEveryType(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	bus := NewBus(zap.NewNop())
	bus.SubscribeAudit(zap.New(core))

	for _, eventType := range AllTypes() {
		require.NoError(t, bus.PublishAndWait(context.Background(), NewEvent(eventType, "subj", nil)))
	}

	entries := logs.FilterMessage("domain event").All()
	require.Len(t, entries, len(AllTypes()))

	seen := map[string]bool{}
	for _, entry := range entries {
		seen[entry.ContextMap()["event_type"].(string)] = true
	}
	for _, eventType := range AllTypes() {
		assert.True(t, seen[string(eventType)], string(eventType))
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Subscribe(EventAllowanceRevoked, func(ctx context.Context, e Event) error {
		t.Fatal("handler should have been removed")
		return nil
	})
	bus.Unsubscribe(EventAllowanceRevoked)

	require.NoError(t, bus.PublishAndWait(context.Background(), NewEvent(EventAllowanceRevoked, "u:a", nil)))
}
