package query

import "fmt"

type changeKind uint8

const (
	kindDelta changeKind = iota
	kindRemove
)

// ValueChange is a tagged record of how the value of one key transitioned during one tick.
//
// A Delta carries the new value and, when the key existed before the tick, the previous value.
// A Remove always carries the last materialized value. The zero value is a Delta of the zero
// value without a previous value.
type ValueChange[V any] struct {
	value       V
	previous    V
	kind        changeKind
	hasPrevious bool
}

// NewInsert returns a Delta for a key that did not exist before this tick.
func NewInsert[V any](value V) ValueChange[V] {
	return ValueChange[V]{value: value}
}

// NewDelta returns a Delta for a key whose value was previous before this tick.
func NewDelta[V any](value, previous V) ValueChange[V] {
	return ValueChange[V]{value: value, previous: previous, hasPrevious: true}
}

// NewDeltaWithPrevious returns a Delta whose previous value is only present when hasPrevious is true.
func NewDeltaWithPrevious[V any](value, previous V, hasPrevious bool) ValueChange[V] {
	if !hasPrevious {
		return NewInsert(value)
	}
	return NewDelta(value, previous)
}

// NewRemove returns a Remove carrying the last materialized value.
func NewRemove[V any](previous V) ValueChange[V] {
	return ValueChange[V]{value: previous, kind: kindRemove}
}

// IsRemove reports whether the change removes the key.
func (c ValueChange[V]) IsRemove() bool {
	return c.kind == kindRemove
}

// IsInsert reports whether the change is a Delta for a key that did not exist before.
func (c ValueChange[V]) IsInsert() bool {
	return c.kind == kindDelta && !c.hasPrevious
}

// NewValue returns the value after the change. It is absent for a Remove.
func (c ValueChange[V]) NewValue() (V, bool) {
	if c.kind == kindRemove {
		var zero V
		return zero, false
	}
	return c.value, true
}

// OldValue returns the value before the change, if the key existed before the tick.
func (c ValueChange[V]) OldValue() (V, bool) {
	switch {
	case c.kind == kindRemove:
		return c.value, true
	case c.hasPrevious:
		return c.previous, true
	default:
		var zero V
		return zero, false
	}
}

// Merge folds a later change observed for the same key within the same tick into c.
// It returns false when the two changes cancel out, in which case the key must be dropped
// from the change set entirely.
//
// Two removals of the same key without an intervening insert are a programming error and
// cause a panic.
func (c *ValueChange[V]) Merge(later ValueChange[V]) bool {
	switch {
	case c.kind == kindDelta && later.kind == kindDelta:
		c.value = later.value
		return true
	case c.kind == kindDelta && later.kind == kindRemove:
		if !c.hasPrevious {
			// inserted and removed within one tick
			return false
		}
		*c = NewRemove(c.previous)
		return true
	case c.kind == kindRemove && later.kind == kindDelta:
		*c = NewDelta(later.value, c.value)
		return true
	default:
		panic("query: same key removed twice without an intervening insert")
	}
}

// String implements fmt.Stringer.
func (c ValueChange[V]) String() string {
	switch {
	case c.kind == kindRemove:
		return fmt.Sprintf("Remove(%v)", c.value)
	case c.hasPrevious:
		return fmt.Sprintf("Delta(%v, %v)", c.value, c.previous)
	default:
		return fmt.Sprintf("Delta(%v, None)", c.value)
	}
}

// MapChange applies f to every value carried by c.
func MapChange[V, U any](c ValueChange[V], f func(V) U) ValueChange[U] {
	out := ValueChange[U]{
		value:       f(c.value),
		kind:        c.kind,
		hasPrevious: c.hasPrevious,
	}
	if c.hasPrevious {
		out.previous = f(c.previous)
	}
	return out
}

// FilterMapChange reclassifies c after filtering both of its sides through f:
// both sides kept yields a Delta, only the old side kept yields a Remove, only the new side
// kept yields an insert and neither side kept drops the change.
func FilterMapChange[V, U any](c ValueChange[V], f func(V) (U, bool)) (ValueChange[U], bool) {
	var (
		newValue, oldValue U
		hasNew, hasOld     bool
	)
	if v, ok := c.NewValue(); ok {
		newValue, hasNew = f(v)
	}
	if v, ok := c.OldValue(); ok {
		oldValue, hasOld = f(v)
	}
	return FromTransition(oldValue, hasOld, newValue, hasNew)
}

// FromTransition builds the change describing a key going from (before, hasBefore) to
// (after, hasAfter). It returns false when the key is absent on both sides.
func FromTransition[V any](before V, hasBefore bool, after V, hasAfter bool) (ValueChange[V], bool) {
	switch {
	case hasAfter:
		return NewDeltaWithPrevious(after, before, hasBefore), true
	case hasBefore:
		return NewRemove(before), true
	default:
		return ValueChange[V]{}, false
	}
}
