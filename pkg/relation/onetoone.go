package relation

import (
	"fmt"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

type oneToOneReverse[K, V comparable] struct {
	upstream reactive.ReactiveQuery[K, V]
	reverse  query.HashMap[V, K]
}

// OneToOne reverses a query whose values are unique, keying the result by value. Two keys holding
// the same value at the end of a tick panics.
func OneToOne[K, V comparable](upstream reactive.ReactiveQuery[K, V]) reactive.ReactiveQuery[V, K] {
	return &oneToOneReverse[K, V]{
		upstream: upstream,
		reverse:  make(query.HashMap[V, K]),
	}
}

func (r *oneToOneReverse[K, V]) Poll(cx *tick.Context) (query.Changes[V, K], query.Query[V, K]) {
	changes, _ := r.upstream.Poll(cx)

	type state struct {
		key K
		ok  bool
	}
	initial := make(map[V]state)
	touch := func(v V) {
		if _, ok := initial[v]; ok {
			return
		}
		k, ok := r.reverse[v]
		initial[v] = state{key: k, ok: ok}
	}

	// release every old value before claiming new ones, as keys may swap values within a tick
	for k, c := range changes.All() {
		old, ok := c.OldValue()
		if !ok {
			continue
		}
		touch(old)
		if owner, held := r.reverse[old]; held && owner == k {
			delete(r.reverse, old)
		}
	}
	for k, c := range changes.All() {
		v, ok := c.NewValue()
		if !ok {
			continue
		}
		touch(v)
		if owner, held := r.reverse[v]; held && owner != k {
			panic(fmt.Sprintf("relation: value %v is held by both %v and %v", v, owner, k))
		}
		r.reverse[v] = k
	}

	out := make(query.ChangeMap[V, K])
	for v, before := range initial {
		after, hasAfter := r.reverse[v]
		if before.ok && hasAfter && before.key == after {
			continue
		}
		if change, ok := query.FromTransition(before.key, before.ok, after, hasAfter); ok {
			out[v] = change
		}
	}
	return out, r.reverse
}

func (r *oneToOneReverse[K, V]) Request(req reactive.Request) {
	r.upstream.Request(req)
	if req == reactive.ShrinkToFit {
		r.reverse = query.Materialize[V, K](r.reverse)
	}
}
