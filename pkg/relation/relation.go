package relation

import (
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

// OneToMany is a reactive edge-defining query (many -> one) that also maintains its reverse
// index. A OneToMany must have a single consumer; wrap the edge query in a reactive.Fork to share
// it.
type OneToMany[O, M comparable] interface {
	reactive.ReactiveQuery[M, O]
	// PollRelation advances the relation by one tick. The returned MultiQuery reflects the
	// returned view and is valid until the next poll.
	PollRelation(cx *tick.Context) (query.Changes[M, O], query.Query[M, O], MultiQuery[O, M])
}

type bookkept[O, M comparable] struct {
	upstream reactive.ReactiveQuery[M, O]
	book     Bookkeeping[O, M]
}

// NewHashRelation is a function that indexes upstream with a HashBookkeeping.
func NewHashRelation[O, M comparable](upstream reactive.ReactiveQuery[M, O]) OneToMany[O, M] {
	return &bookkept[O, M]{upstream: upstream, book: NewHashBookkeeping[O, M]()}
}

// NewDenseRelation is a function that indexes upstream with a DenseBookkeeping.
func NewDenseRelation[O, M query.DenseKey](upstream reactive.ReactiveQuery[M, O]) OneToMany[O, M] {
	return &bookkept[O, M]{upstream: upstream, book: NewDenseBookkeeping[O, M]()}
}

func (r *bookkept[O, M]) PollRelation(cx *tick.Context) (query.Changes[M, O], query.Query[M, O], MultiQuery[O, M]) {
	changes, view := r.upstream.Poll(cx)
	materialized := query.MaterializeChanges(changes)
	r.book.Apply(materialized)
	return materialized, view, r.book
}

func (r *bookkept[O, M]) Poll(cx *tick.Context) (query.Changes[M, O], query.Query[M, O]) {
	changes, view, _ := r.PollRelation(cx)
	return changes, view
}

func (r *bookkept[O, M]) Request(req reactive.Request) {
	r.upstream.Request(req)
	if req == reactive.ShrinkToFit {
		r.book.ShrinkToFit()
	}
}
