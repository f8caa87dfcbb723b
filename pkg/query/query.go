// Package query contains the delta algebra and the pull-based collection interfaces that every
// reactive operator is built on.
//
// A Query is a point-in-time keyed snapshot. Keys must be comparable; values are opaque and are
// never compared. A change set for one tick is itself a Query whose values are ValueChange.
package query

import (
	"iter"
	"maps"
)

// Query is a read-only keyed view.
type Query[K comparable, V any] interface {
	// Access returns the value for key, if present.
	Access(key K) (V, bool)
	// All enumerates every key/value pair in unspecified order.
	All() iter.Seq2[K, V]
}

// Changes is the set of per-key transitions observed during one tick.
type Changes[K comparable, V any] interface {
	Query[K, ValueChange[V]]
}

// HashMap is a Query over a standard library map.
type HashMap[K comparable, V any] map[K]V

var _ Query[int, string] = HashMap[int, string](nil)

func (m HashMap[K, V]) Access(key K) (V, bool) {
	v, ok := m[key]
	return v, ok
}

func (m HashMap[K, V]) All() iter.Seq2[K, V] {
	return maps.All(m)
}

// ChangeMap is a materialized change set.
type ChangeMap[K comparable, V any] map[K]ValueChange[V]

var _ Changes[int, string] = ChangeMap[int, string](nil)

func (m ChangeMap[K, V]) Access(key K) (ValueChange[V], bool) {
	c, ok := m[key]
	return c, ok
}

func (m ChangeMap[K, V]) All() iter.Seq2[K, ValueChange[V]] {
	return maps.All(m)
}

// Merge folds change into the entry for key, removing the entry when the two cancel out.
func (m ChangeMap[K, V]) Merge(key K, change ValueChange[V]) {
	current, ok := m[key]
	if !ok {
		m[key] = change
		return
	}
	if !current.Merge(change) {
		delete(m, key)
		return
	}
	m[key] = current
}

// MergeAll folds every change of other into m.
func (m ChangeMap[K, V]) MergeAll(other Changes[K, V]) {
	for k, c := range other.All() {
		m.Merge(k, c)
	}
}

// Empty is a Query that contains nothing.
type Empty[K comparable, V any] struct{}

func (Empty[K, V]) Access(K) (V, bool) {
	var zero V
	return zero, false
}

func (Empty[K, V]) All() iter.Seq2[K, V] {
	return func(func(K, V) bool) {}
}

// Keys returns the keys of q.
func Keys[K comparable, V any](q Query[K, V]) iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range q.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Contains reports whether q has an entry for key.
func Contains[K comparable, V any](q Query[K, V], key K) bool {
	_, ok := q.Access(key)
	return ok
}

// Len counts the entries of q.
func Len[K comparable, V any](q Query[K, V]) int {
	var n int
	for range q.All() {
		n++
	}
	return n
}

// IsEmpty reports whether q has no entries without enumerating all of them.
func IsEmpty[K comparable, V any](q Query[K, V]) bool {
	for range q.All() {
		return false
	}
	return true
}

// Materialize copies every entry of q into a new HashMap.
func Materialize[K comparable, V any](q Query[K, V]) HashMap[K, V] {
	if m, ok := q.(HashMap[K, V]); ok {
		return maps.Clone(m)
	}
	out := make(HashMap[K, V])
	for k, v := range q.All() {
		out[k] = v
	}
	return out
}

// MaterializeChanges copies every change of c into a new ChangeMap.
func MaterializeChanges[K comparable, V any](c Changes[K, V]) ChangeMap[K, V] {
	if m, ok := c.(ChangeMap[K, V]); ok {
		return maps.Clone(m)
	}
	out := make(ChangeMap[K, V])
	for k, v := range c.All() {
		out[k] = v
	}
	return out
}
