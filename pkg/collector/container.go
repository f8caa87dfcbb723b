// Package collector wraps mutable containers so that every write also produces the matching
// change record, and applies change streams back onto containers.
package collector

import (
	"iter"

	"github.com/openfga/reactive/pkg/query"
)

// Container is a mutable keyed store that can be wrapped by a Collector.
type Container[K comparable, V any] interface {
	query.Query[K, V]
	// Set stores value and returns the previous value, if any.
	Set(key K, value V) (V, bool)
	// Delete removes key and returns the value it held.
	Delete(key K) (V, bool)
	// Ref returns a pointer to the stored value for in-place updates, or nil when absent.
	Ref(key K) *V
	Len() int
	ShrinkToFit()
}

var (
	_ Container[string, int] = (*HashContainer[string, int])(nil)
	_ Container[uint32, int] = (*query.Dense[uint32, int])(nil)
)

// HashContainer is a Container for arbitrary keys. Values are boxed so that Ref is stable.
type HashContainer[K comparable, V any] struct {
	m map[K]*V
}

// NewHashContainer is a function that returns an empty HashContainer.
func NewHashContainer[K comparable, V any]() *HashContainer[K, V] {
	return &HashContainer[K, V]{m: make(map[K]*V)}
}

// NewDenseContainer is a function that returns an empty dense-index Container.
func NewDenseContainer[K query.DenseKey, V any](capacity int) *query.Dense[K, V] {
	return query.NewDense[K, V](capacity)
}

func (h *HashContainer[K, V]) Access(key K) (V, bool) {
	p, ok := h.m[key]
	if !ok {
		var zero V
		return zero, false
	}
	return *p, true
}

func (h *HashContainer[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, p := range h.m {
			if !yield(k, *p) {
				return
			}
		}
	}
}

func (h *HashContainer[K, V]) Set(key K, value V) (V, bool) {
	if p, ok := h.m[key]; ok {
		prev := *p
		*p = value
		return prev, true
	}
	h.m[key] = &value
	var zero V
	return zero, false
}

func (h *HashContainer[K, V]) Delete(key K) (V, bool) {
	p, ok := h.m[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(h.m, key)
	return *p, true
}

func (h *HashContainer[K, V]) Ref(key K) *V {
	return h.m[key]
}

func (h *HashContainer[K, V]) Len() int {
	return len(h.m)
}

func (h *HashContainer[K, V]) ShrinkToFit() {
	m := make(map[K]*V, len(h.m))
	for k, p := range h.m {
		m[k] = p
	}
	h.m = m
}
