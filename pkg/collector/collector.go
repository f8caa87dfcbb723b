package collector

import (
	"github.com/openfga/reactive/pkg/query"
)

// Sink receives the change records produced by a Collector. A *collective.Tx, a
// *collective.Sender and a *ChangeSink are all sinks.
type Sink[K comparable, V any] interface {
	Send(key K, change query.ValueChange[V])
}

// ChangeSink accumulates changes in memory, merging changes to the same key.
type ChangeSink[K comparable, V any] struct {
	changes query.ChangeMap[K, V]
}

// NewChangeSink is a function that returns an empty ChangeSink.
func NewChangeSink[K comparable, V any]() *ChangeSink[K, V] {
	return &ChangeSink[K, V]{changes: make(query.ChangeMap[K, V])}
}

func (s *ChangeSink[K, V]) Send(key K, change query.ValueChange[V]) {
	s.changes.Merge(key, change)
}

// Take returns the accumulated changes and resets the sink.
func (s *ChangeSink[K, V]) Take() query.ChangeMap[K, V] {
	taken := s.changes
	s.changes = make(query.ChangeMap[K, V])
	return taken
}

// Collector performs writes on a Container and reports each of them to a Sink. Replaying the
// reported changes onto an equal container reproduces the target.
type Collector[K comparable, V any] struct {
	target Container[K, V]
	sink   Sink[K, V]
}

// New is a function that wraps target, reporting to sink.
func New[K comparable, V any](target Container[K, V], sink Sink[K, V]) *Collector[K, V] {
	return &Collector[K, V]{target: target, sink: sink}
}

// GetCurrent returns the value currently held for key.
func (c *Collector[K, V]) GetCurrent(key K) (V, bool) {
	return c.target.Access(key)
}

// Mutate updates the value for key in place. It returns false without calling fn when key is
// absent.
func (c *Collector[K, V]) Mutate(key K, fn func(v *V)) bool {
	ref := c.target.Ref(key)
	if ref == nil {
		return false
	}
	prev := *ref
	fn(ref)
	c.sink.Send(key, query.NewDelta(*ref, prev))
	return true
}

// SetValue stores value for key.
func (c *Collector[K, V]) SetValue(key K, value V) {
	prev, had := c.target.Set(key, value)
	c.sink.Send(key, query.NewDeltaWithPrevious(value, prev, had))
}

// Remove deletes key and reports false when it was absent.
func (c *Collector[K, V]) Remove(key K) bool {
	prev, ok := c.target.Delete(key)
	if !ok {
		return false
	}
	c.sink.Send(key, query.NewRemove(prev))
	return true
}

// ApplyChanges writes every change onto the target, reporting each write to the sink.
func (c *Collector[K, V]) ApplyChanges(changes query.Changes[K, V]) {
	for k, change := range changes.All() {
		if v, ok := change.NewValue(); ok {
			c.SetValue(k, v)
			continue
		}
		c.Remove(k)
	}
}

// Target returns the wrapped container.
func (c *Collector[K, V]) Target() Container[K, V] {
	return c.target
}

// ApplyChanges writes every change onto target without reporting it anywhere.
func ApplyChanges[K comparable, V any](target Container[K, V], changes query.Changes[K, V]) {
	for k, change := range changes.All() {
		if v, ok := change.NewValue(); ok {
			target.Set(k, v)
			continue
		}
		target.Delete(k)
	}
}

// ApplyBatch writes b onto target: every removal first, then every upsert.
func ApplyBatch[K comparable, V any](target Container[K, V], b *query.Batch[K, V]) {
	for _, k := range b.Removed {
		target.Delete(k)
	}
	for _, kv := range b.UpdateOrInsert {
		target.Set(kv.Key, kv.Value)
	}
}
