// Package reactive contains the reactive query contract and the pure operators that derive one
// reactive query from others.
//
// A reactive query is polled once per tick. Each poll returns the changes since the previous poll
// and a view of the current state. The change set contains exactly the keys whose value differs
// between the previous view and the returned one, and every change is already reflected in the
// returned view.
//
// Views and change sets returned by Poll are valid until the next Poll of the same query.
// Operators never block: "nothing changed" is reported as an empty change set.
package reactive

import (
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

// Request is an extra operation that is propagated to every upstream of a query.
type Request int

const (
	// ShrinkToFit asks stateful operators to release storage retained by removed entries.
	ShrinkToFit Request = iota
	// Release detaches a query from its consumer. Channel-backed leaves close their receiver, so
	// producers observe the channel as closed and later writes are discarded.
	Release
)

func (r Request) String() string {
	switch r {
	case ShrinkToFit:
		return "shrink_to_fit"
	case Release:
		return "release"
	default:
		return "unknown"
	}
}

// ReactiveQuery is a keyed collection together with its tick-over-tick change stream.
type ReactiveQuery[K comparable, V any] interface {
	// Poll advances the query by one tick.
	Poll(cx *tick.Context) (query.Changes[K, V], query.Query[K, V])
	// Request forwards req to every upstream unconditionally and applies it locally where it
	// is meaningful.
	Request(req Request)
}

// PollMaterialized polls q and materializes the returned change set.
func PollMaterialized[K comparable, V any](q ReactiveQuery[K, V], cx *tick.Context) (query.ChangeMap[K, V], query.Query[K, V]) {
	changes, view := q.Poll(cx)
	return query.MaterializeChanges(changes), view
}
