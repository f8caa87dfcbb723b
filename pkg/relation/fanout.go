package relation

import (
	"iter"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

type fanout[O, M comparable, V any] struct {
	values   reactive.ReactiveQuery[O, V]
	relation OneToMany[O, M]
}

// Fanout projects per-one values onto every many owned by that one.
//
// A many is revisited when its edge changed or when the value of its current owner changed. Its
// output change is derived from the value it resolved to before the tick (previous edge, previous
// owner value) and the value it resolves to now, so an edge change and an owner value change in
// the same tick produce one combined change, and opposite changes cancel.
func Fanout[O, M comparable, V any](values reactive.ReactiveQuery[O, V], relation OneToMany[O, M]) reactive.ReactiveQuery[M, V] {
	return &fanout[O, M, V]{values: values, relation: relation}
}

func (f *fanout[O, M, V]) Poll(cx *tick.Context) (query.Changes[M, V], query.Query[M, V]) {
	valueChanges, valueView := f.values.Poll(cx)
	edgeChanges, edgeView, multi := f.relation.PollRelation(cx)

	valuePrev := query.MakePrevious(valueView, valueChanges)
	edgePrev := query.MakePrevious(edgeView, edgeChanges)

	out := make(query.ChangeMap[M, V])
	visited := make(map[M]struct{})
	visit := func(many M) {
		if _, ok := visited[many]; ok {
			return
		}
		visited[many] = struct{}{}

		before, hadBefore := resolve(edgePrev, valuePrev, many)
		after, hasAfter := resolve(edgeView, valueView, many)
		if change, ok := query.FromTransition(before, hadBefore, after, hasAfter); ok {
			out[many] = change
		}
	}

	for many := range edgeChanges.All() {
		visit(many)
	}
	for one := range valueChanges.All() {
		for many := range multi.AccessMulti(one) {
			visit(many)
		}
	}

	return out, fanoutView[O, M, V]{edges: edgeView, values: valueView}
}

func resolve[O, M comparable, V any](edges query.Query[M, O], values query.Query[O, V], many M) (V, bool) {
	one, ok := edges.Access(many)
	if !ok {
		var zero V
		return zero, false
	}
	return values.Access(one)
}

func (f *fanout[O, M, V]) Request(req reactive.Request) {
	f.values.Request(req)
	f.relation.Request(req)
}

type fanoutView[O, M comparable, V any] struct {
	edges  query.Query[M, O]
	values query.Query[O, V]
}

func (v fanoutView[O, M, V]) Access(many M) (V, bool) {
	return resolve(v.edges, v.values, many)
}

func (v fanoutView[O, M, V]) All() iter.Seq2[M, V] {
	return func(yield func(M, V) bool) {
		for many, one := range v.edges.All() {
			value, ok := v.values.Access(one)
			if !ok {
				continue
			}
			if !yield(many, value) {
				return
			}
		}
	}
}
