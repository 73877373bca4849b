package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishSyncRunsAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(nil)

	var calls int
	bus.Subscribe("bridge.test", HandlerFunc(func(ctx context.Context, event Event) error {
		calls++
		return errors.New("first handler failed")
	}))
	bus.Subscribe("bridge.test", HandlerFunc(func(ctx context.Context, event Event) error {
		calls++
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "bridge.test"})
	if err == nil {
		t.Fatal("expected first handler error to surface")
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d calls", calls)
	}
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := NewInMemoryBus(nil)

	done := make(chan struct{})
	bus.Subscribe("bridge.panic", HandlerFunc(func(ctx context.Context, event Event) error {
		panic("subscriber bug")
	}))
	bus.Subscribe("bridge.panic", HandlerFunc(func(ctx context.Context, event Event) error {
		close(done)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "bridge.panic"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler did not run")
	}
}

func TestPublishSyncNoHandlers(t *testing.T) {
	bus := NewInMemoryBus(nil)

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "bridge.unheard"})
	if err != nil {
		t.Fatalf("publishing without subscribers should be a no-op, got %v", err)
	}
}
