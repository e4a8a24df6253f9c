package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agentmux/internal/domain"
)

func newEvent(t domain.EventType, sessionID string) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New(nil)

	var routed, completed atomic.Int32
	bus.Subscribe(domain.EventQueryRouted, func(_ context.Context, _ domain.Event) { routed.Add(1) })
	bus.Subscribe(domain.EventCollaborationCompleted, func(_ context.Context, _ domain.Event) { completed.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, "s1"))
	bus.Close()

	if routed.Load() != 1 {
		t.Fatalf("routed = %d, want 1", routed.Load())
	}
	if completed.Load() != 0 {
		t.Fatalf("completed = %d, want 0", completed.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, "s1"))
	bus.Publish(context.Background(), newEvent(domain.EventAgentResponded, "s1"))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventAgentResponded, func(_ context.Context, _ domain.Event) { got.Add(1) })
	unsub()
	unsub() // second call is a no-op

	bus.Publish(context.Background(), newEvent(domain.EventAgentResponded, "s1"))
	bus.Close()

	if got.Load() != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", got.Load())
	}
}

func TestUnsubscribeKeepsOthers(t *testing.T) {
	bus := New(nil)

	var a, b atomic.Int32
	unsubA := bus.SubscribeAll(func(_ context.Context, _ domain.Event) { a.Add(1) })
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { b.Add(1) })
	unsubA()

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, ""))
	bus.Close()

	assert.Equal(t, int32(0), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestConcurrentPublish(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.Subscribe(domain.EventAgentResponded, func(_ context.Context, _ domain.Event) { got.Add(1) })

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventAgentResponded, fmt.Sprint(i)))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.Subscribe(domain.EventQueryRouted, func(_ context.Context, _ domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventQueryRouted, func(_ context.Context, _ domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, "s1"))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 (second handler), got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.Subscribe(domain.EventQueryRouted, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, "s1"))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, "s2"))
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
	assert.Len(t, bus.Recent(0), 1)
}

func TestRecentWrapsAround(t *testing.T) {
	bus := New(nil, WithHistory(3))
	defer bus.Close()

	for i := range 5 {
		bus.Publish(context.Background(), newEvent(domain.EventAgentResponded, fmt.Sprint(i)))
	}

	ids := func(events []domain.Event) []string {
		out := make([]string, len(events))
		for i, e := range events {
			out[i] = e.SessionID
		}
		return out
	}
	assert.Equal(t, []string{"2", "3", "4"}, ids(bus.Recent(0)))
	assert.Equal(t, []string{"3", "4"}, ids(bus.Recent(2)))
	assert.Equal(t, []string{"2", "3", "4"}, ids(bus.Recent(10)))
}

func TestRecentDisabled(t *testing.T) {
	bus := New(nil, WithHistory(0))
	defer bus.Close()

	bus.Publish(context.Background(), newEvent(domain.EventQueryRouted, "s1"))
	assert.Empty(t, bus.Recent(5))
}

func BenchmarkPublish(b *testing.B) {
	bus := New(nil)
	ctx := context.Background()
	event := newEvent(domain.EventAgentResponded, "bench-session")
	bus.Subscribe(domain.EventAgentResponded, func(_ context.Context, _ domain.Event) {})

	b.ReportAllocs()
	for b.Loop() {
		bus.Publish(ctx, event)
	}
	bus.Close()
}

func TestCloseRacingPublish(t *testing.T) {
	bus := New(nil)

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		time.Sleep(time.Millisecond)
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				bus.Publish(context.Background(), newEvent(domain.EventAgentResponded, fmt.Sprintf("s%d-%d", i, j)))
			}
		}()
	}
	time.Sleep(2 * time.Millisecond)
	bus.Close()
	delivered := got.Load()

	wg.Wait()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, delivered, got.Load(), "no handler may run after Close returns")
}
