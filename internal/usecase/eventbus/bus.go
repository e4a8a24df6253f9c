package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"agentmux/internal/domain"
)

const defaultHistory = 256

type subscription struct {
	id      uint64
	topic   domain.EventType // empty receives every event
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus that also keeps the most
// recent events for inspection.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed bool // guarded by mu

	histMu  sync.Mutex
	history []domain.Event
	histCap int
	histPos int
	histLen int
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistory sets how many recent events Recent can return. Zero disables
// the history.
func WithHistory(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.histCap = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Bus{logger: logger, histCap: defaultHistory}
	for _, opt := range opts {
		opt(b)
	}
	b.history = make([]domain.Event, b.histCap)
	return b
}

// Publish records the event and fans it out to matching subscribers. Each
// handler runs in its own goroutine; a panicking handler is recovered.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	// The read lock spans the closed check and wg.Add so Close cannot start
	// waiting between them.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.remember(event)

	for _, sub := range b.subs {
		if sub.topic == "" || sub.topic == event.Type {
			b.dispatch(ctx, event, sub)
		}
	}
}

// dispatch must be called with mu held.
func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"session_id", event.SessionID,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(topic domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Bus) remember(event domain.Event) {
	if b.histCap == 0 {
		return
	}
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history[b.histPos] = event
	b.histPos = (b.histPos + 1) % b.histCap
	if b.histLen < b.histCap {
		b.histLen++
	}
}

// Recent returns up to n of the latest events, oldest first. n <= 0 returns
// the whole history.
func (b *Bus) Recent(n int) []domain.Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	if n <= 0 || n > b.histLen {
		n = b.histLen
	}
	out := make([]domain.Event, 0, n)
	start := (b.histPos - n + b.histCap) % max(b.histCap, 1)
	for i := range n {
		out = append(out, b.history[(start+i)%b.histCap])
	}
	return out
}

// Close prevents new publishes and waits for in-flight handlers. It is safe
// to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

// LogEvents subscribes a debug logger to every event on bus.
func LogEvents(bus domain.EventBus, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		logger.Debug("event", "type", string(e.Type), "session_id", e.SessionID, "payload", string(e.Payload))
	})
}
