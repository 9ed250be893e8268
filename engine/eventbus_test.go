package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"triviakit/core"
	"triviakit/engine"
)

func xpEvent() core.Event {
	return core.NewXPAwarded("u", "cat", 10, 10, time.Now())
}

func TestEventBusSync(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	count := 0
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), xpEvent())
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	count := 0
	unsub := bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { count++ })
	unsub()
	bus.Publish(context.Background(), xpEvent())
	if count != 0 {
		t.Fatalf("handler ran after unsubscribe")
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), xpEvent())
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchAsync, engine.WithWorkers(1), engine.WithQueueSize(64))
	var n atomic.Int64
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { n.Add(1) })
	for i := 0; i < 50; i++ {
		bus.Publish(context.Background(), xpEvent())
	}
	bus.Close()
	if n.Load() != 50 {
		t.Fatalf("delivered %d of 50", n.Load())
	}
	// publishing after close is a no-op
	bus.Publish(context.Background(), xpEvent())
	bus.Close()
}

func TestEventBusDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	bus := engine.NewEventBus(engine.DispatchAsync, engine.WithWorkers(1), engine.WithQueueSize(1))
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { <-block })
	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), xpEvent())
	}
	if bus.Dropped() == 0 {
		t.Fatal("expected drops with a full queue")
	}
	close(block)
	bus.Close()
}
