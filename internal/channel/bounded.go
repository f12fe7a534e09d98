// Package channel provides a bounded channel with drop-on-full
// semantics, used to fan progress events out to subscribers without
// letting a slow consumer stall the flow.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bounded wraps a buffered channel. Sends never block; when the
// buffer is full the value is dropped and counted.
type Bounded[T any] struct {
	ch      chan T
	dropped atomic.Int64

	// mu serializes TrySend against Close so a send can never hit a
	// closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewBounded creates a bounded channel with the given capacity.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = 16
	}
	return &Bounded[T]{ch: make(chan T, capacity)}
}

// TrySend enqueues v, dropping it when the buffer is full or the
// channel is closed. Returns false on drop.
func (b *Bounded[T]) TrySend(v T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	select {
	case b.ch <- v:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Receive blocks until a value arrives, the channel closes, or ctx is
// done. The bool is false when the channel is closed and drained.
func (b *Bounded[T]) Receive(ctx context.Context) (T, bool, error) {
	select {
	case v, ok := <-b.ch:
		return v, ok, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Chan exposes the underlying channel for select statements.
func (b *Bounded[T]) Chan() <-chan T {
	return b.ch
}

// Dropped returns how many values were discarded on full buffers.
func (b *Bounded[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close marks the channel closed. Idempotent. Pending values stay
// readable until drained.
func (b *Bounded[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
