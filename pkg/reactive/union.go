package reactive

import (
	"fmt"
	"iter"
	"runtime"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

// UnionFunc combines the two sides of a key. Returning an invalid Option removes the key from
// the union.
type UnionFunc[A, B, O any] func(a query.Option[A], b query.Option[B]) query.Option[O]

type union[K comparable, A, B, O any] struct {
	left  ReactiveQuery[K, A]
	right ReactiveQuery[K, B]
	fn    UnionFunc[A, B, O]
}

// Union combines two queries over the same key space with fn. The output change set is derived
// from fn evaluated on the previous and current state of both sides, so a change on one side is
// reported exactly when the combined value appears, disappears or is updated.
func Union[K comparable, A, B, O any](left ReactiveQuery[K, A], right ReactiveQuery[K, B], fn UnionFunc[A, B, O]) ReactiveQuery[K, O] {
	return &union[K, A, B, O]{left: left, right: right, fn: fn}
}

func (u *union[K, A, B, O]) Poll(cx *tick.Context) (query.Changes[K, O], query.Query[K, O]) {
	leftChanges, leftView := u.left.Poll(cx)
	rightChanges, rightView := u.right.Poll(cx)

	leftPrev := query.MakePrevious(leftView, leftChanges)
	rightPrev := query.MakePrevious(rightView, rightChanges)

	out := make(query.ChangeMap[K, O])
	visit := func(key K) {
		before := u.fn(query.OptionOf(leftPrev.Access(key)), query.OptionOf(rightPrev.Access(key)))
		after := u.fn(query.OptionOf(leftView.Access(key)), query.OptionOf(rightView.Access(key)))
		if change, ok := query.FromTransition(before.Value, before.Valid, after.Value, after.Valid); ok {
			out[key] = change
		}
	}

	for key := range leftChanges.All() {
		visit(key)
	}
	for key := range rightChanges.All() {
		if _, seen := leftChanges.Access(key); seen {
			continue
		}
		visit(key)
	}

	return out, unionView[K, A, B, O]{left: leftView, right: rightView, fn: u.fn}
}

func (u *union[K, A, B, O]) Request(req Request) {
	u.left.Request(req)
	u.right.Request(req)
}

type unionView[K comparable, A, B, O any] struct {
	left  query.Query[K, A]
	right query.Query[K, B]
	fn    UnionFunc[A, B, O]
}

func (v unionView[K, A, B, O]) Access(key K) (O, bool) {
	return v.fn(query.OptionOf(v.left.Access(key)), query.OptionOf(v.right.Access(key))).Get()
}

func (v unionView[K, A, B, O]) All() iter.Seq2[K, O] {
	return func(yield func(K, O) bool) {
		for k, a := range v.left.All() {
			o := v.fn(query.Some(a), query.OptionOf(v.right.Access(k)))
			if !o.Valid {
				continue
			}
			if !yield(k, o.Value) {
				return
			}
		}
		for k, b := range v.right.All() {
			if _, ok := v.left.Access(k); ok {
				continue
			}
			o := v.fn(query.None[A](), query.Some(b))
			if !o.Valid {
				continue
			}
			if !yield(k, o.Value) {
				return
			}
		}
	}
}

// callerLocation records where an operator was built so that invariant violations can name it.
func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Select is a union where at most one side may hold a key at any time. The result is whichever
// side is present. Both sides holding the same key panics with the location that built the
// operator.
func Select[K comparable, V any](left, right ReactiveQuery[K, V]) ReactiveQuery[K, V] {
	location := callerLocation(1)
	return Union(left, right, func(a query.Option[V], b query.Option[V]) query.Option[V] {
		switch {
		case a.Valid && b.Valid:
			panic(fmt.Sprintf("reactive: select built at %s: key present on both sides", location))
		case a.Valid:
			return a
		default:
			return b
		}
	})
}

// Pair holds the two values zipped for one key.
type Pair[A, B any] struct {
	Left  A
	Right B
}

// Zip is a union that requires every key to be present on both sides at every poll. A key held by
// only one side panics with the location that built the operator.
func Zip[K comparable, A, B any](left ReactiveQuery[K, A], right ReactiveQuery[K, B]) ReactiveQuery[K, Pair[A, B]] {
	location := callerLocation(1)
	return Union(left, right, func(a query.Option[A], b query.Option[B]) query.Option[Pair[A, B]] {
		if !a.Valid && !b.Valid {
			return query.None[Pair[A, B]]()
		}
		if a.Valid != b.Valid {
			panic(fmt.Sprintf("reactive: zip built at %s: key present on one side only", location))
		}
		return query.Some(Pair[A, B]{Left: a.Value, Right: b.Value})
	})
}

// Intersect keeps the keys present on both sides.
func Intersect[K comparable, A, B any](left ReactiveQuery[K, A], right ReactiveQuery[K, B]) ReactiveQuery[K, Pair[A, B]] {
	return Union(left, right, func(a query.Option[A], b query.Option[B]) query.Option[Pair[A, B]] {
		if !a.Valid || !b.Valid {
			return query.None[Pair[A, B]]()
		}
		return query.Some(Pair[A, B]{Left: a.Value, Right: b.Value})
	})
}

// FilterByKeySet keeps the entries of upstream whose key is present in keys.
func FilterByKeySet[K comparable, V, S any](upstream ReactiveQuery[K, V], keys ReactiveQuery[K, S]) ReactiveQuery[K, V] {
	return Union(upstream, keys, func(a query.Option[V], b query.Option[S]) query.Option[V] {
		if !b.Valid {
			return query.None[V]()
		}
		return a
	})
}
