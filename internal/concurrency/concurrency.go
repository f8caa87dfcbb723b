package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a new pool where each task respects context cancellation.
// Wait() will only return the first error seen.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// TrySendLatest sends msg without blocking. When the channel is full the oldest buffered value
// is dropped to make room, so a slow reader always sees the most recent values.
func TrySendLatest[T any](msg T, channel chan T) {
	for {
		select {
		case channel <- msg:
			return
		default:
		}
		select {
		case <-channel:
		default:
		}
	}
}
