package reactive

import (
	"sync"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

type forkShared[K comparable, V any] struct {
	mu       sync.Mutex
	upstream ReactiveQuery[K, V]
	polled   bool
	lastTick uint64
	view     query.Query[K, V]
	buffers  map[uint64]query.ChangeMap[K, V]
	nextID   uint64
}

// Fork lets several downstream operators consume one upstream. The upstream is polled at most
// once per tick id and its changes are buffered per downstream, so a fork that is polled less
// often than the others still sees every change. A fork created after the upstream has been
// polled receives the whole current view as inserts on its first poll.
type Fork[K comparable, V any] struct {
	shared *forkShared[K, V]
	id     uint64
	closed bool
}

var _ ReactiveQuery[int, int] = (*Fork[int, int])(nil)

// NewFork is a function that returns the first downstream handle of upstream.
func NewFork[K comparable, V any](upstream ReactiveQuery[K, V]) *Fork[K, V] {
	sh := &forkShared[K, V]{
		upstream: upstream,
		buffers:  make(map[uint64]query.ChangeMap[K, V]),
	}
	return sh.add()
}

func (sh *forkShared[K, V]) add() *Fork[K, V] {
	id := sh.nextID
	sh.nextID++

	buf := make(query.ChangeMap[K, V])
	if sh.view != nil {
		for k, v := range sh.view.All() {
			buf[k] = query.NewInsert(v)
		}
	}
	sh.buffers[id] = buf
	return &Fork[K, V]{shared: sh, id: id}
}

// Clone returns another downstream handle sharing the same upstream.
func (f *Fork[K, V]) Clone() *Fork[K, V] {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()

	if f.closed {
		panic("reactive: clone of a closed fork")
	}
	return f.shared.add()
}

func (f *Fork[K, V]) Poll(cx *tick.Context) (query.Changes[K, V], query.Query[K, V]) {
	sh := f.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if f.closed {
		panic("reactive: poll of a closed fork")
	}

	if !sh.polled || sh.lastTick != cx.Tick {
		changes, view := sh.upstream.Poll(cx)
		for _, buf := range sh.buffers {
			buf.MergeAll(changes)
		}
		sh.view = view
		sh.lastTick = cx.Tick
		sh.polled = true
	}

	out := sh.buffers[f.id]
	sh.buffers[f.id] = make(query.ChangeMap[K, V])
	return out, sh.view
}

// Request forwards req to the upstream. Release closes this handle instead and reaches the
// upstream only once every handle is closed.
func (f *Fork[K, V]) Request(req Request) {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()

	if req != Release {
		f.shared.upstream.Request(req)
		return
	}
	if f.closeLocked() && len(f.shared.buffers) == 0 {
		f.shared.upstream.Request(Release)
	}
}

// Close releases the buffer held for this handle. The upstream stays alive while other handles
// are open.
func (f *Fork[K, V]) Close() error {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()

	f.closeLocked()
	return nil
}

func (f *Fork[K, V]) closeLocked() bool {
	if f.closed {
		return false
	}
	f.closed = true
	delete(f.shared.buffers, f.id)
	return true
}
