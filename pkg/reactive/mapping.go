package reactive

import (
	"iter"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

type kvMapped[K comparable, V, U any] struct {
	upstream ReactiveQuery[K, V]
	fn       func(K, V) U
}

// Map transforms every value with fn. Changes are mapped lazily; fn must be pure because it may
// be called more than once for the same value within a tick.
func Map[K comparable, V, U any](upstream ReactiveQuery[K, V], fn func(V) U) ReactiveQuery[K, U] {
	return &kvMapped[K, V, U]{
		upstream: upstream,
		fn: func(_ K, v V) U {
			return fn(v)
		},
	}
}

// KVMap is like Map but fn also receives the key.
func KVMap[K comparable, V, U any](upstream ReactiveQuery[K, V], fn func(K, V) U) ReactiveQuery[K, U] {
	return &kvMapped[K, V, U]{upstream: upstream, fn: fn}
}

// KeyAsValue replaces every value with its own key.
func KeyAsValue[K comparable, V any](upstream ReactiveQuery[K, V]) ReactiveQuery[K, K] {
	return KVMap(upstream, func(k K, _ V) K {
		return k
	})
}

func (m *kvMapped[K, V, U]) Poll(cx *tick.Context) (query.Changes[K, U], query.Query[K, U]) {
	changes, view := m.upstream.Poll(cx)
	return mappedChanges[K, V, U]{inner: changes, fn: m.fn}, mappedView[K, V, U]{inner: view, fn: m.fn}
}

func (m *kvMapped[K, V, U]) Request(req Request) {
	m.upstream.Request(req)
}

type mappedView[K comparable, V, U any] struct {
	inner query.Query[K, V]
	fn    func(K, V) U
}

func (v mappedView[K, V, U]) Access(key K) (U, bool) {
	val, ok := v.inner.Access(key)
	if !ok {
		var zero U
		return zero, false
	}
	return v.fn(key, val), true
}

func (v mappedView[K, V, U]) All() iter.Seq2[K, U] {
	return func(yield func(K, U) bool) {
		for k, val := range v.inner.All() {
			if !yield(k, v.fn(k, val)) {
				return
			}
		}
	}
}

type mappedChanges[K comparable, V, U any] struct {
	inner query.Changes[K, V]
	fn    func(K, V) U
}

func (c mappedChanges[K, V, U]) mapOne(key K, change query.ValueChange[V]) query.ValueChange[U] {
	return query.MapChange(change, func(v V) U {
		return c.fn(key, v)
	})
}

func (c mappedChanges[K, V, U]) Access(key K) (query.ValueChange[U], bool) {
	change, ok := c.inner.Access(key)
	if !ok {
		return query.ValueChange[U]{}, false
	}
	return c.mapOne(key, change), true
}

func (c mappedChanges[K, V, U]) All() iter.Seq2[K, query.ValueChange[U]] {
	return func(yield func(K, query.ValueChange[U]) bool) {
		for k, change := range c.inner.All() {
			if !yield(k, c.mapOne(k, change)) {
				return
			}
		}
	}
}

type filterMapped[K comparable, V, U any] struct {
	upstream ReactiveQuery[K, V]
	fn       func(V) (U, bool)
}

// FilterMap transforms values with fn and drops entries for which fn reports false. A change is
// dropped when fn rejects both its old and new value; it becomes an insert or a remove when fn
// rejects exactly one of them.
func FilterMap[K comparable, V, U any](upstream ReactiveQuery[K, V], fn func(V) (U, bool)) ReactiveQuery[K, U] {
	return &filterMapped[K, V, U]{upstream: upstream, fn: fn}
}

// Filter keeps the entries whose value satisfies pred.
func Filter[K comparable, V any](upstream ReactiveQuery[K, V], pred func(V) bool) ReactiveQuery[K, V] {
	return FilterMap(upstream, func(v V) (V, bool) {
		return v, pred(v)
	})
}

func (f *filterMapped[K, V, U]) Poll(cx *tick.Context) (query.Changes[K, U], query.Query[K, U]) {
	changes, view := f.upstream.Poll(cx)
	return filterMappedChanges[K, V, U]{inner: changes, fn: f.fn}, filterMappedView[K, V, U]{inner: view, fn: f.fn}
}

func (f *filterMapped[K, V, U]) Request(req Request) {
	f.upstream.Request(req)
}

type filterMappedView[K comparable, V, U any] struct {
	inner query.Query[K, V]
	fn    func(V) (U, bool)
}

func (v filterMappedView[K, V, U]) Access(key K) (U, bool) {
	val, ok := v.inner.Access(key)
	if !ok {
		var zero U
		return zero, false
	}
	return v.fn(val)
}

func (v filterMappedView[K, V, U]) All() iter.Seq2[K, U] {
	return func(yield func(K, U) bool) {
		for k, val := range v.inner.All() {
			mapped, ok := v.fn(val)
			if !ok {
				continue
			}
			if !yield(k, mapped) {
				return
			}
		}
	}
}

type filterMappedChanges[K comparable, V, U any] struct {
	inner query.Changes[K, V]
	fn    func(V) (U, bool)
}

func (c filterMappedChanges[K, V, U]) Access(key K) (query.ValueChange[U], bool) {
	change, ok := c.inner.Access(key)
	if !ok {
		return query.ValueChange[U]{}, false
	}
	return query.FilterMapChange(change, c.fn)
}

func (c filterMappedChanges[K, V, U]) All() iter.Seq2[K, query.ValueChange[U]] {
	return func(yield func(K, query.ValueChange[U]) bool) {
		for k, change := range c.inner.All() {
			mapped, ok := query.FilterMapChange(change, c.fn)
			if !ok {
				continue
			}
			if !yield(k, mapped) {
				return
			}
		}
	}
}

type keyDualMapped[K, K2 comparable, V any] struct {
	upstream ReactiveQuery[K, V]
	forward  func(K) K2
	backward func(K2) K
}

// KeyDualMap rekeys upstream through a bijection. backward must be the inverse of forward.
func KeyDualMap[K, K2 comparable, V any](upstream ReactiveQuery[K, V], forward func(K) K2, backward func(K2) K) ReactiveQuery[K2, V] {
	return &keyDualMapped[K, K2, V]{upstream: upstream, forward: forward, backward: backward}
}

func (m *keyDualMapped[K, K2, V]) Poll(cx *tick.Context) (query.Changes[K2, V], query.Query[K2, V]) {
	changes, view := m.upstream.Poll(cx)
	return rekeyed[K, K2, query.ValueChange[V]]{inner: changes, forward: m.forward, backward: m.backward},
		rekeyed[K, K2, V]{inner: view, forward: m.forward, backward: m.backward}
}

func (m *keyDualMapped[K, K2, V]) Request(req Request) {
	m.upstream.Request(req)
}

type rekeyed[K, K2 comparable, V any] struct {
	inner    query.Query[K, V]
	forward  func(K) K2
	backward func(K2) K
}

func (r rekeyed[K, K2, V]) Access(key K2) (V, bool) {
	return r.inner.Access(r.backward(key))
}

func (r rekeyed[K, K2, V]) All() iter.Seq2[K2, V] {
	return func(yield func(K2, V) bool) {
		for k, v := range r.inner.All() {
			if !yield(r.forward(k), v) {
				return
			}
		}
	}
}
