package relation

import (
	"iter"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

type manyToOneReduce[O, M comparable, S any] struct {
	members reactive.ReactiveQuery[M, S]
	edges   reactive.ReactiveQuery[M, O]
	counts  map[O]int
}

// ManyToOneReduce computes the set of ones referenced by at least one member. A member references
// the one its edge points to. References are counted, so a one stays in the result until its last
// referencing member leaves or is re-pointed.
func ManyToOneReduce[O, M comparable, S any](members reactive.ReactiveQuery[M, S], edges reactive.ReactiveQuery[M, O]) reactive.ReactiveQuery[O, struct{}] {
	return &manyToOneReduce[O, M, S]{
		members: members,
		edges:   edges,
		counts:  make(map[O]int),
	}
}

func (r *manyToOneReduce[O, M, S]) Poll(cx *tick.Context) (query.Changes[O, struct{}], query.Query[O, struct{}]) {
	memberChanges, memberView := r.members.Poll(cx)
	edgeChanges, edgeView := r.edges.Poll(cx)

	memberPrev := query.MakePrevious(memberView, memberChanges)
	edgePrev := query.MakePrevious(edgeView, edgeChanges)

	// presence of each touched one before this tick
	initial := make(map[O]bool)
	adjust := func(one O, delta int) {
		if _, ok := initial[one]; !ok {
			initial[one] = r.counts[one] > 0
		}
		n := r.counts[one] + delta
		switch {
		case n < 0:
			panic("relation: reference count of a reduced key went negative")
		case n == 0:
			delete(r.counts, one)
		default:
			r.counts[one] = n
		}
	}

	visited := make(map[M]struct{})
	visit := func(many M) {
		if _, ok := visited[many]; ok {
			return
		}
		visited[many] = struct{}{}

		if one, ok := referenced(memberPrev, edgePrev, many); ok {
			adjust(one, -1)
		}
		if one, ok := referenced(memberView, edgeView, many); ok {
			adjust(one, 1)
		}
	}
	for many := range memberChanges.All() {
		visit(many)
	}
	for many := range edgeChanges.All() {
		visit(many)
	}

	out := make(query.ChangeMap[O, struct{}])
	for one, before := range initial {
		_, after := r.counts[one]
		switch {
		case before == after:
		case after:
			out[one] = query.NewInsert(struct{}{})
		default:
			out[one] = query.NewRemove(struct{}{})
		}
	}
	return out, countView[O](r.counts)
}

func referenced[O, M comparable, S any](members query.Query[M, S], edges query.Query[M, O], many M) (O, bool) {
	if _, ok := members.Access(many); !ok {
		var zero O
		return zero, false
	}
	return edges.Access(many)
}

func (r *manyToOneReduce[O, M, S]) Request(req reactive.Request) {
	r.members.Request(req)
	r.edges.Request(req)
	if req == reactive.ShrinkToFit {
		counts := make(map[O]int, len(r.counts))
		for k, v := range r.counts {
			counts[k] = v
		}
		r.counts = counts
	}
}

type countView[O comparable] map[O]int

func (v countView[O]) Access(one O) (struct{}, bool) {
	_, ok := v[one]
	return struct{}{}, ok
}

func (v countView[O]) All() iter.Seq2[O, struct{}] {
	return func(yield func(O, struct{}) bool) {
		for one := range v {
			if !yield(one, struct{}{}) {
				return
			}
		}
	}
}
