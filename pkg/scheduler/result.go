package scheduler

import (
	"fmt"
	"reflect"

	"github.com/openfga/reactive/pkg/query"
)

// QueryResult is what one registered query produced in a tick.
type QueryResult[K comparable, V any] struct {
	Changes query.ChangeMap[K, V]
	View    query.Query[K, V]
}

// ResultCtx holds the results of one PollUpdateAll, keyed by token. Each result can be taken
// once. It also carries a slot per type for values that registrants share within the tick.
type ResultCtx struct {
	tick    uint64
	results map[uint64]any
	shared  map[reflect.Type]any
}

// Tick returns the id of the tick that produced the results.
func (r *ResultCtx) Tick() uint64 {
	return r.tick
}

func (r *ResultCtx) take(tok Token) any {
	id := tok.id()
	result, ok := r.results[id]
	if !ok {
		panic(fmt.Sprintf("scheduler: no result for token %d in tick %d; it was deregistered, never registered, or already taken", id, r.tick))
	}
	delete(r.results, id)
	return result
}

// TakeReactiveQueryUpdated returns the changes and view produced for tok in this tick.
func TakeReactiveQueryUpdated[K comparable, V any](r *ResultCtx, tok QueryToken[K, V]) QueryResult[K, V] {
	return r.take(tok).(QueryResult[K, V])
}

// TakeMultiUpdated returns the target maintained by the updater identified by tok.
func TakeMultiUpdated[T any](r *ResultCtx, tok UpdaterToken[T]) *T {
	return r.take(tok).(*T)
}

// SetShared stores v in the slot for type T, replacing any previous value.
func SetShared[T any](r *ResultCtx, v T) {
	r.shared[reflect.TypeFor[T]()] = v
}

// Shared returns the value stored in the slot for type T.
func Shared[T any](r *ResultCtx) (T, bool) {
	v, ok := r.shared[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}
