package events

import (
	"context"
	"sync"

	"github.com/callsight/callsight/internal/logger"
)

// DefaultSubscriberBuffer is the per-subscriber channel size.
const DefaultSubscriberBuffer = 256

// Handler processes one event. Handlers run on the subscriber's dispatch
// goroutine; a slow handler delays only its own subscription.
type Handler func(ctx context.Context, event Event)

// Bus is an in-process publish/subscribe primitive. Delivery is best-effort:
// a subscriber whose buffer is full misses the event rather than blocking
// the publisher. No cross-process delivery.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]*subscription
	log    logger.Logger
	buffer int
	wg     sync.WaitGroup
	closed bool
}

type subscription struct {
	ch      chan Event
	handler Handler
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithSubscriberBuffer sets the per-subscriber channel size.
func WithSubscriberBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBus creates an event bus.
func NewBus(log logger.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[Type][]*subscription),
		log:    log,
		buffer: DefaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the given event type. The handler runs
// on a dedicated goroutine fed by a buffered channel, so publishers never
// wait for handlers.
func (b *Bus) Subscribe(ctx context.Context, eventType Type, handler Handler) {
	sub := &subscription{
		ch:      make(chan Event, b.buffer),
		handler: handler,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case event, ok := <-sub.ch:
				if !ok {
					return
				}
				sub.handler(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Publish delivers an event to every subscriber of its type without
// blocking. Full subscriber buffers drop the event with a warning. The send
// happens under the read lock so Close, which closes the subscriber
// channels under the write lock, cannot race a send.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs[event.Type] {
		select {
		case sub.ch <- event:
		default:
			b.log.Warn("event dropped, subscriber buffer full",
				logger.String("event_type", string(event.Type)),
				logger.String("session_id", event.SessionID),
			)
		}
	}
}

// Close stops all subscriber goroutines and waits for them to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[Type][]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
}
