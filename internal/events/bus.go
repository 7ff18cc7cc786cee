package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Bus distributes engine events to subscribers with filtering.
//
// Publish never blocks on a slow subscriber: each subscription has its own
// buffered channel and events are dropped per-subscriber when the buffer is
// full. All methods are safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	bufferSize  int
	logger      *slog.Logger
	closed      bool

	counter uint64
}

type subscription struct {
	id     string
	ch     chan Event
	filter Filter
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber channel buffer. Default: 100.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the logger used for dropped-event warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscription),
		bufferSize:  100,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends an event to all matching subscribers. Returns an error only
// if the bus is closed.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}

		if !sub.filter.Matches(event) {
			continue
		}

		select {
		case sub.ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Buffer full; drop for this subscriber only.
			b.logger.Warn("dropped event for slow subscriber",
				"subscriber_id", sub.id,
				"event_type", event.Type,
				"task_id", event.TaskID)
		}
	}
	return nil
}

// Subscribe creates a subscription. The cleanup function must be called to
// release the subscription; the channel is closed by cleanup or by Close.
func (b *Bus) Subscribe(ctx context.Context, filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counter++
	id := fmt.Sprintf("sub-%d-%d", time.Now().UnixNano(), b.counter)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:     id,
		ch:     make(chan Event, b.bufferSize),
		filter: filter,
		ctx:    subCtx,
		cancel: cancel,
	}
	b.subscribers[id] = sub

	cleanup := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			s.cancel()
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
	return sub.ch, cleanup
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts the bus down and closes all subscriber channels. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.cancel()
		close(sub.ch)
		delete(b.subscribers, id)
	}
	return nil
}
