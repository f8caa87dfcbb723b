package query

import (
	"fmt"
	"iter"
)

// MakePrevious reconstructs the view as it was before the tick that produced changes.
//
// The reconstruction is only valid when view and changes describe the same tick: every key with
// a Delta is present in view and every removed key is absent. This precondition is checked and a
// violation panics, since it means an operator upstream kept more (or less) than one outstanding
// tick of history.
func MakePrevious[K comparable, V any](view Query[K, V], changes Changes[K, V]) Query[K, V] {
	CheckSameTick(view, changes)
	return previousView[K, V]{current: view, changes: changes}
}

// CheckSameTick panics when changes could not have produced view.
func CheckSameTick[K comparable, V any](view Query[K, V], changes Changes[K, V]) {
	for k, c := range changes.All() {
		_, present := view.Access(k)
		if c.IsRemove() && present {
			panic(fmt.Sprintf("query: key %v removed in this tick is still present in the view", k))
		}
		if !c.IsRemove() && !present {
			panic(fmt.Sprintf("query: key %v changed in this tick is missing from the view", k))
		}
	}
}

type previousView[K comparable, V any] struct {
	current Query[K, V]
	changes Changes[K, V]
}

func (p previousView[K, V]) Access(key K) (V, bool) {
	if c, ok := p.changes.Access(key); ok {
		return c.OldValue()
	}
	return p.current.Access(key)
}

func (p previousView[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for k, v := range p.current.All() {
			if _, changed := p.changes.Access(k); changed {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
		for k, c := range p.changes.All() {
			old, ok := c.OldValue()
			if !ok {
				continue
			}
			if !yield(k, old) {
				return
			}
		}
	}
}
