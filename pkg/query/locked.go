package query

import (
	"iter"
	"maps"
	"sync"
)

// Locked is a map guarded by a read/write lock. Any number of readers may access it
// concurrently; a writer excludes every other reader and writer for the duration of Update.
type Locked[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

var _ Query[int, string] = (*Locked[int, string])(nil)

// NewLocked is a function that returns an empty Locked map.
func NewLocked[K comparable, V any]() *Locked[K, V] {
	return &Locked[K, V]{m: make(map[K]V)}
}

func (l *Locked[K, V]) Access(key K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.m[key]
	return v, ok
}

// All holds the read lock for the whole enumeration. Calling Update from inside the loop
// deadlocks.
func (l *Locked[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		l.mu.RLock()
		defer l.mu.RUnlock()

		for k, v := range l.m {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Update runs fn with exclusive access to the underlying map. The lock is released when fn
// returns or panics.
func (l *Locked[K, V]) Update(fn func(m map[K]V)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fn(l.m)
}

// Snapshot returns a copy of the current contents.
func (l *Locked[K, V]) Snapshot() HashMap[K, V] {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return maps.Clone(l.m)
}

// ShrinkToFit reallocates the underlying map so that storage retained by deleted entries is
// released.
func (l *Locked[K, V]) ShrinkToFit() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.m = maps.Clone(l.m)
	if l.m == nil {
		l.m = make(map[K]V)
	}
}
