package reactive

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openfga/reactive/pkg/collective"
	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

// ReceiverQuery is the source leaf that turns the receiving end of a collective channel into a
// reactive query. It materializes the drained changes into its own map, which is the view it
// returns.
//
// A leaf has exactly one consumer: polling it twice in the same tick panics, as the second poll
// would miss the changes drained by the first. Consumers that share a leaf go through NewFork.
type ReceiverQuery[K comparable, V any] struct {
	rx       *collective.Receiver[K, V]
	view     query.HashMap[K, V]
	closed   bool
	polled   bool
	lastTick uint64
	logger   logger.Logger
	label    string
}

var _ ReactiveQuery[int, int] = (*ReceiverQuery[int, int])(nil)

// ReceiverQueryOpt configures a ReceiverQuery.
type ReceiverQueryOpt[K comparable, V any] func(*ReceiverQuery[K, V])

// WithReceiverLogger sets the logger used to report channel closure.
func WithReceiverLogger[K comparable, V any](l logger.Logger) ReceiverQueryOpt[K, V] {
	return func(r *ReceiverQuery[K, V]) {
		r.logger = l
	}
}

// WithReceiverLabel names the source in log output.
func WithReceiverLabel[K comparable, V any](label string) ReceiverQueryOpt[K, V] {
	return func(r *ReceiverQuery[K, V]) {
		r.label = label
	}
}

// FromReceiver is a function that wraps rx into a source reactive query.
func FromReceiver[K comparable, V any](rx *collective.Receiver[K, V], opts ...ReceiverQueryOpt[K, V]) *ReceiverQuery[K, V] {
	r := &ReceiverQuery[K, V]{
		rx:     rx,
		view:   make(query.HashMap[K, V]),
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ReceiverQuery[K, V]) Poll(cx *tick.Context) (query.Changes[K, V], query.Query[K, V]) {
	if r.polled && r.lastTick == cx.Tick {
		panic(fmt.Sprintf("reactive: source %q polled twice in tick %d", r.label, cx.Tick))
	}
	r.polled = true
	r.lastTick = cx.Tick

	if r.closed {
		return query.ChangeMap[K, V]{}, r.view
	}

	changes, status := r.rx.Poll(cx)
	switch status {
	case collective.Ready:
		for k, c := range changes {
			if v, ok := c.NewValue(); ok {
				r.view[k] = v
				continue
			}
			delete(r.view, k)
		}
		return changes, r.view
	case collective.Closed:
		r.closed = true
		r.logger.Debug("collective channel closed",
			zap.String("source", r.label),
			zap.Int("size", len(r.view)),
		)
	}
	return query.ChangeMap[K, V]{}, r.view
}

func (r *ReceiverQuery[K, V]) Request(req Request) {
	switch req {
	case ShrinkToFit:
		shrunk := make(query.HashMap[K, V], len(r.view))
		for k, v := range r.view {
			shrunk[k] = v
		}
		r.view = shrunk
	case Release:
		if r.closed {
			return
		}
		r.closed = true
		_ = r.rx.Close()
		r.logger.Debug("collective channel released",
			zap.String("source", r.label),
			zap.Int("size", len(r.view)),
		)
	}
}

// IsClosed reports whether the channel closure has been observed or the query was released.
func (r *ReceiverQuery[K, V]) IsClosed() bool {
	return r.closed
}

// Source is an owner-side keyed store that publishes every write through a collective channel.
// It stands in for the component storage of an entity database: writes may come from any
// goroutine, while Poll must be called from the single driver.
type Source[K comparable, V any] struct {
	data *query.Locked[K, V]
	tx   *collective.Sender[K, V]
	leaf *ReceiverQuery[K, V]
}

var _ ReactiveQuery[int, int] = (*Source[int, int])(nil)

// NewSource is a function that returns an empty Source.
func NewSource[K comparable, V any](opts ...ReceiverQueryOpt[K, V]) *Source[K, V] {
	tx, rx := collective.New[K, V]()
	return &Source[K, V]{
		data: query.NewLocked[K, V](),
		tx:   tx,
		leaf: FromReceiver(rx, opts...),
	}
}

// Get returns the latest written value for key, which may not have been polled yet.
func (s *Source[K, V]) Get(key K) (V, bool) {
	return s.data.Access(key)
}

// Insert sets the value for key.
func (s *Source[K, V]) Insert(key K, value V) {
	s.write(func(tx *collective.Tx[K, V], m map[K]V) {
		prev, ok := m[key]
		m[key] = value
		tx.Send(key, query.NewDeltaWithPrevious(value, prev, ok))
	})
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Source[K, V]) Remove(key K) {
	s.write(func(tx *collective.Tx[K, V], m map[K]V) {
		prev, ok := m[key]
		if !ok {
			return
		}
		delete(m, key)
		tx.Send(key, query.NewRemove(prev))
	})
}

// Mutate applies fn to a copy of the value for key and stores the result. It returns false when
// key is absent.
func (s *Source[K, V]) Mutate(key K, fn func(v *V)) bool {
	var found bool
	s.write(func(tx *collective.Tx[K, V], m map[K]V) {
		prev, ok := m[key]
		if !ok {
			return
		}
		found = true
		next := prev
		fn(&next)
		m[key] = next
		tx.Send(key, query.NewDelta(next, prev))
	})
	return found
}

// Batch runs fn with exclusive access to the store; every write made through w is published as
// one unit.
func (s *Source[K, V]) Batch(fn func(w *SourceWriter[K, V])) {
	s.write(func(tx *collective.Tx[K, V], m map[K]V) {
		fn(&SourceWriter[K, V]{tx: tx, m: m})
	})
}

func (s *Source[K, V]) write(fn func(tx *collective.Tx[K, V], m map[K]V)) {
	s.tx.Transact(func(tx *collective.Tx[K, V]) {
		s.data.Update(func(m map[K]V) {
			fn(tx, m)
		})
	})
}

// Close closes the producer side. The reactive side observes the closure once the remaining
// changes have been drained.
func (s *Source[K, V]) Close() error {
	return s.tx.Close()
}

func (s *Source[K, V]) Poll(cx *tick.Context) (query.Changes[K, V], query.Query[K, V]) {
	return s.leaf.Poll(cx)
}

func (s *Source[K, V]) Request(req Request) {
	if req == ShrinkToFit {
		s.data.ShrinkToFit()
	}
	s.leaf.Request(req)
}

// SourceWriter performs writes inside Source.Batch.
type SourceWriter[K comparable, V any] struct {
	tx *collective.Tx[K, V]
	m  map[K]V
}

// Insert sets the value for key.
func (w *SourceWriter[K, V]) Insert(key K, value V) {
	prev, ok := w.m[key]
	w.m[key] = value
	w.tx.Send(key, query.NewDeltaWithPrevious(value, prev, ok))
}

// Remove deletes key if present.
func (w *SourceWriter[K, V]) Remove(key K) {
	prev, ok := w.m[key]
	if !ok {
		return
	}
	delete(w.m, key)
	w.tx.Send(key, query.NewRemove(prev))
}
