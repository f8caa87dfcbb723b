// Package collective implements the mutation channel that bridges imperative writes into the
// reactive graph.
//
// Any number of producers merge per-key changes into one shared pending change set inside an
// exclusive section. The single consumer drains the whole set once per tick, so many concurrent
// writes to one key collapse into a single change per tick.
package collective

import (
	"sync"
	"sync/atomic"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

// Status describes the outcome of a Receiver poll.
type Status int

const (
	// Pending means no change has been sent since the last poll.
	Pending Status = iota
	// Ready means the returned change set is non-empty.
	Ready
	// Closed means every producer handle has been closed and nothing is left to drain.
	// It is reported by exactly one poll; every later poll returns Pending.
	Closed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type shared[K comparable, V any] struct {
	mu       sync.Mutex
	pending  query.ChangeMap[K, V]
	waker    tick.Waker
	senders  int
	rxClosed bool
	reported bool

	done     chan struct{}
	doneOnce sync.Once
}

// Sender is one producer handle. Handles are created by New and Clone, and each must be
// closed exactly once when the producer stops; the channel closes with its last handle.
type Sender[K comparable, V any] struct {
	shared *shared[K, V]
	closed atomic.Bool
}

// Receiver is the single consumer side of the channel.
type Receiver[K comparable, V any] struct {
	shared *shared[K, V]
}

// New is a function that creates a channel with one open producer handle.
func New[K comparable, V any]() (*Sender[K, V], *Receiver[K, V]) {
	s := &shared[K, V]{
		pending: make(query.ChangeMap[K, V]),
		senders: 1,
		done:    make(chan struct{}),
	}
	return &Sender[K, V]{shared: s}, &Receiver[K, V]{shared: s}
}

// Clone returns a new producer handle on the same channel. Cloning a closed handle panics.
func (s *Sender[K, V]) Clone() *Sender[K, V] {
	if s.closed.Load() {
		panic("collective: clone of a closed sender")
	}

	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	s.shared.senders++
	return &Sender[K, V]{shared: s.shared}
}

// Close releases this producer handle. Closing the last handle closes the channel and wakes the
// consumer so it can observe the closure. Closing a handle twice has no further effect.
func (s *Sender[K, V]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	sh := s.shared
	sh.mu.Lock()
	sh.senders--
	last := sh.senders == 0
	waker := sh.waker
	sh.mu.Unlock()

	if last {
		sh.doneOnce.Do(func() { close(sh.done) })
	}
	if waker != nil {
		waker.Wake()
	}
	return nil
}

// IsClosed reports whether the consumer has gone away. Changes sent afterwards are discarded.
func (s *Sender[K, V]) IsClosed() bool {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	return s.shared.rxClosed
}

// Transact runs fn inside the exclusive section of the channel. Every change sent through tx is
// merged into the pending set. The section is released when fn returns or panics, after which
// the consumer is woken if anything was sent.
func (s *Sender[K, V]) Transact(fn func(tx *Tx[K, V])) {
	if s.closed.Load() {
		panic("collective: send on a closed sender")
	}

	sh := s.shared
	tx := &Tx[K, V]{shared: sh}

	sh.mu.Lock()
	defer func() {
		waker := sh.waker
		sent := tx.sent
		sh.mu.Unlock()

		if sent > 0 && waker != nil {
			waker.Wake()
		}
	}()

	fn(tx)
}

// Send merges a single change inside its own exclusive section.
func (s *Sender[K, V]) Send(key K, change query.ValueChange[V]) {
	s.Transact(func(tx *Tx[K, V]) {
		tx.Send(key, change)
	})
}

// Tx is the view of the pending change set available inside Sender.Transact.
// It must not be retained after Transact returns.
type Tx[K comparable, V any] struct {
	shared *shared[K, V]
	sent   int
}

// Send merges change into the pending entry for key. When the two cancel out the key is
// dropped from the pending set.
func (tx *Tx[K, V]) Send(key K, change query.ValueChange[V]) {
	if tx.shared.rxClosed {
		return
	}
	tx.shared.pending.Merge(key, change)
	tx.sent++
}

// Pending returns the change currently buffered for key.
func (tx *Tx[K, V]) Pending(key K) (query.ValueChange[V], bool) {
	return tx.shared.pending.Access(key)
}

// Poll registers the waker of cx and drains the pending change set, replacing it with an
// empty one. A non-empty set is always returned before Closed is reported, and Closed is
// reported once.
func (r *Receiver[K, V]) Poll(cx *tick.Context) (query.ChangeMap[K, V], Status) {
	sh := r.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.waker = cx.Waker()

	if len(sh.pending) > 0 {
		drained := sh.pending
		sh.pending = make(query.ChangeMap[K, V], len(drained))
		return drained, Ready
	}
	if sh.senders == 0 && !sh.reported {
		sh.reported = true
		return nil, Closed
	}
	return nil, Pending
}

// HasChange reports whether a poll would return a non-empty change set.
func (r *Receiver[K, V]) HasChange() bool {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()

	return len(r.shared.pending) > 0
}

// Done returns a channel that is closed once the last producer handle has been closed.
func (r *Receiver[K, V]) Done() <-chan struct{} {
	return r.shared.done
}

// Close detaches the consumer. Pending changes are dropped and later sends are discarded.
func (r *Receiver[K, V]) Close() error {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()

	r.shared.rxClosed = true
	r.shared.pending = make(query.ChangeMap[K, V])
	return nil
}
