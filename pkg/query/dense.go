package query

import (
	"iter"

	"golang.org/x/exp/constraints"
)

// DenseKey is a key that is a small non-negative integer, typically an allocation index.
type DenseKey interface {
	constraints.Integer
}

type denseSlot[V any] struct {
	value V
	ok    bool
}

// Dense is a Query backed by a vector indexed by key. It avoids hashing when the key space is
// small and densely allocated.
type Dense[K DenseKey, V any] struct {
	slots []denseSlot[V]
	count int
}

var _ Query[uint32, string] = (*Dense[uint32, string])(nil)

// NewDense is a function that returns an empty Dense with room for capacity keys.
func NewDense[K DenseKey, V any](capacity int) *Dense[K, V] {
	return &Dense[K, V]{slots: make([]denseSlot[V], 0, capacity)}
}

func (d *Dense[K, V]) Access(key K) (V, bool) {
	idx := int(key)
	if idx < 0 || idx >= len(d.slots) {
		var zero V
		return zero, false
	}
	s := d.slots[idx]
	return s.value, s.ok
}

func (d *Dense[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i, s := range d.slots {
			if !s.ok {
				continue
			}
			if !yield(K(i), s.value) {
				return
			}
		}
	}
}

// Len returns the number of present keys.
func (d *Dense[K, V]) Len() int {
	return d.count
}

// Set stores value for key, growing the vector when needed, and returns the previous value.
func (d *Dense[K, V]) Set(key K, value V) (V, bool) {
	idx := int(key)
	if idx < 0 {
		panic("query: negative dense key")
	}
	if idx >= len(d.slots) {
		d.slots = append(d.slots, make([]denseSlot[V], idx+1-len(d.slots))...)
	}
	prev := d.slots[idx]
	d.slots[idx] = denseSlot[V]{value: value, ok: true}
	if !prev.ok {
		d.count++
	}
	return prev.value, prev.ok
}

// Ref returns a pointer to the stored value for key, or nil when the key is absent.
// The pointer is invalidated by the next Set that grows the vector.
func (d *Dense[K, V]) Ref(key K) *V {
	idx := int(key)
	if idx < 0 || idx >= len(d.slots) || !d.slots[idx].ok {
		return nil
	}
	return &d.slots[idx].value
}

// Delete removes key and returns the value it held.
func (d *Dense[K, V]) Delete(key K) (V, bool) {
	idx := int(key)
	var zero V
	if idx < 0 || idx >= len(d.slots) || !d.slots[idx].ok {
		return zero, false
	}
	prev := d.slots[idx].value
	d.slots[idx] = denseSlot[V]{}
	d.count--
	return prev, true
}

// ShrinkToFit drops trailing empty slots and reallocates the vector to its used length.
func (d *Dense[K, V]) ShrinkToFit() {
	end := len(d.slots)
	for end > 0 && !d.slots[end-1].ok {
		end--
	}
	shrunk := make([]denseSlot[V], end)
	copy(shrunk, d.slots[:end])
	d.slots = shrunk
}
