// Package eventbus provides an in-process publish/subscribe bus used to fan
// optimization events out to collectors.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the channel capacity of subscribers created with Subscribe.
const DefaultBuffer = 8

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Publishing never blocks: events for a full subscriber are dropped and
// counted.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	dropped atomic.Uint64
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

// Publish sends the event to all subscribers and returns how many received it.
func (b *TypedBus[T]) Publish(e T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- e:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped returns the number of events discarded because a subscriber was full.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers a subscriber with DefaultBuffer capacity.
func (b *TypedBus[T]) Subscribe() <-chan T { return b.SubscribeBuffered(DefaultBuffer) }

// SubscribeBuffered registers a subscriber whose channel holds up to n events.
// On a closed bus the returned channel is already closed.
func (b *TypedBus[T]) SubscribeBuffered(n int) <-chan T {
	if n < 0 {
		n = 0
	}
	ch := make(chan T, n)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes the bus and all subscriber channels. It is idempotent.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
