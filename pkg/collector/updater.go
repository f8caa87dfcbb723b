package collector

import (
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

// QueryUpdater advances one reactive query and writes its effect into a target of type T.
type QueryUpdater[T any] interface {
	Update(target *T, cx *tick.Context)
	Request(req reactive.Request)
}

type funcUpdater[T any, K comparable, V any] struct {
	q     reactive.ReactiveQuery[K, V]
	apply func(target *T, changes query.Changes[K, V], view query.Query[K, V])
}

// UpdaterFunc is a function that builds a QueryUpdater calling apply with every poll result of q.
func UpdaterFunc[T any, K comparable, V any](q reactive.ReactiveQuery[K, V], apply func(target *T, changes query.Changes[K, V], view query.Query[K, V])) QueryUpdater[T] {
	return &funcUpdater[T, K, V]{q: q, apply: apply}
}

// ContainerUpdater is a function that builds a QueryUpdater replaying the changes of q into the
// container selected from the target by field, as one linear batch per tick.
func ContainerUpdater[T any, K comparable, V any](q reactive.ReactiveQuery[K, V], field func(target *T) Container[K, V]) QueryUpdater[T] {
	return UpdaterFunc(q, func(target *T, changes query.Changes[K, V], _ query.Query[K, V]) {
		if b := query.ToBatch(changes); !b.IsEmpty() {
			ApplyBatch(field(target), b)
		}
	})
}

func (u *funcUpdater[T, K, V]) Update(target *T, cx *tick.Context) {
	changes, view := u.q.Poll(cx)
	u.apply(target, changes, view)
}

func (u *funcUpdater[T, K, V]) Request(req reactive.Request) {
	u.q.Request(req)
}

// MultiUpdateContainer is a target kept up to date by several reactive queries, such as a table
// whose columns come from different sources.
type MultiUpdateContainer[T any] struct {
	target   T
	updaters []QueryUpdater[T]
}

// NewMultiUpdateContainer is a function that wraps target.
func NewMultiUpdateContainer[T any](target T) *MultiUpdateContainer[T] {
	return &MultiUpdateContainer[T]{target: target}
}

// AddSource registers another updater. Updaters run in registration order.
func (m *MultiUpdateContainer[T]) AddSource(u QueryUpdater[T]) *MultiUpdateContainer[T] {
	m.updaters = append(m.updaters, u)
	return m
}

// Update runs every updater once.
func (m *MultiUpdateContainer[T]) Update(cx *tick.Context) {
	for _, u := range m.updaters {
		u.Update(&m.target, cx)
	}
}

// Request forwards req to every updater.
func (m *MultiUpdateContainer[T]) Request(req reactive.Request) {
	for _, u := range m.updaters {
		u.Request(req)
	}
}

// Target returns the container being updated.
func (m *MultiUpdateContainer[T]) Target() *T {
	return &m.target
}
