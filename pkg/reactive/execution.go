package reactive

import (
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

type mapExecution[K comparable, V, U any] struct {
	upstream ReactiveQuery[K, V]
	prepare  func() func(K, V) U
	cache    query.HashMap[K, U]
}

// MapExecution is a materializing map for expensive or stateful mappers. prepare is called once
// per poll to obtain the mapper for that tick, and the mapper is only invoked for keys whose
// upstream value changed. Results are cached, so the view never calls the mapper.
func MapExecution[K comparable, V, U any](upstream ReactiveQuery[K, V], prepare func() func(K, V) U) ReactiveQuery[K, U] {
	return &mapExecution[K, V, U]{
		upstream: upstream,
		prepare:  prepare,
		cache:    make(query.HashMap[K, U]),
	}
}

func (m *mapExecution[K, V, U]) Poll(cx *tick.Context) (query.Changes[K, U], query.Query[K, U]) {
	changes, _ := m.upstream.Poll(cx)

	var mapper func(K, V) U
	out := make(query.ChangeMap[K, U])
	for k, change := range changes.All() {
		prev, had := m.cache[k]
		if v, ok := change.NewValue(); ok {
			if mapper == nil {
				mapper = m.prepare()
			}
			next := mapper(k, v)
			m.cache[k] = next
			out[k] = query.NewDeltaWithPrevious(next, prev, had)
			continue
		}
		if !had {
			panic("reactive: remove of a key that was never mapped")
		}
		delete(m.cache, k)
		out[k] = query.NewRemove(prev)
	}
	return out, m.cache
}

func (m *mapExecution[K, V, U]) Request(req Request) {
	m.upstream.Request(req)
	if req == ShrinkToFit {
		m.cache = query.Materialize[K, U](m.cache)
	}
}
