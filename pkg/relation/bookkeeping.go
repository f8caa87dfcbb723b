// Package relation maintains one-to-many relations incrementally and derives per-many values from
// per-one values through them.
//
// A relation is described by an edge-defining query that maps every "many" key to the "one" key
// owning it. The bookkeeping types keep the reverse index of that query up to date from its change
// stream alone.
package relation

import (
	"iter"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/openfga/reactive/pkg/query"
)

// MultiQuery gives access to the set of "many" keys owned by each "one" key. A "one" with no
// edges is absent: AccessMulti yields nothing and Keys does not produce it.
type MultiQuery[O, M comparable] interface {
	AccessMulti(one O) iter.Seq[M]
	Keys() iter.Seq[O]
}

// Bookkeeping is a reverse index that can be advanced by the changes of its edge-defining query.
type Bookkeeping[O, M comparable] interface {
	MultiQuery[O, M]
	// Apply updates the index with one tick of edge changes. Applying the same edge state twice
	// leaves the index unchanged.
	Apply(changes query.Changes[M, O])
	ShrinkToFit()
}

// HashBookkeeping is the reverse index for arbitrary key types.
type HashBookkeeping[O, M comparable] struct {
	reverse map[O]map[M]struct{}
	// forward is the owner each many was last indexed under. It is consulted instead of the old
	// value carried by a change, so replayed changes do not corrupt the index.
	forward map[M]O
}

var _ Bookkeeping[string, int] = (*HashBookkeeping[string, int])(nil)

// NewHashBookkeeping is a function that returns an empty HashBookkeeping.
func NewHashBookkeeping[O, M comparable]() *HashBookkeeping[O, M] {
	return &HashBookkeeping[O, M]{
		reverse: make(map[O]map[M]struct{}),
		forward: make(map[M]O),
	}
}

func (b *HashBookkeeping[O, M]) Apply(changes query.Changes[M, O]) {
	for many, change := range changes.All() {
		if one, ok := change.NewValue(); ok {
			b.link(many, one)
			continue
		}
		b.unlink(many)
	}
}

func (b *HashBookkeeping[O, M]) link(many M, one O) {
	if current, ok := b.forward[many]; ok {
		if current == one {
			return
		}
		b.unlink(many)
	}
	set, ok := b.reverse[one]
	if !ok {
		set = make(map[M]struct{})
		b.reverse[one] = set
	}
	set[many] = struct{}{}
	b.forward[many] = one
}

func (b *HashBookkeeping[O, M]) unlink(many M) {
	one, ok := b.forward[many]
	if !ok {
		return
	}
	delete(b.forward, many)
	set := b.reverse[one]
	delete(set, many)
	if len(set) == 0 {
		delete(b.reverse, one)
	}
}

func (b *HashBookkeeping[O, M]) AccessMulti(one O) iter.Seq[M] {
	return func(yield func(M) bool) {
		for many := range b.reverse[one] {
			if !yield(many) {
				return
			}
		}
	}
}

func (b *HashBookkeeping[O, M]) Keys() iter.Seq[O] {
	return func(yield func(O) bool) {
		for one := range b.reverse {
			if !yield(one) {
				return
			}
		}
	}
}

// Owner returns the one currently owning many.
func (b *HashBookkeeping[O, M]) Owner(many M) (O, bool) {
	one, ok := b.forward[many]
	return one, ok
}

func (b *HashBookkeeping[O, M]) ShrinkToFit() {
	reverse := make(map[O]map[M]struct{}, len(b.reverse))
	for one, set := range b.reverse {
		reverse[one] = set
	}
	b.reverse = reverse
	b.forward = query.Materialize[M, O](query.HashMap[M, O](b.forward))
}

// denseSetThreshold is the size above which a dense owner set switches from a slice to a hash set.
const denseSetThreshold = 128

// denseSet holds the many keys of one owner. Small sets are a slice scanned linearly.
type denseSet[M query.DenseKey] struct {
	small []M
	large *hashset.Set
}

func (s *denseSet[M]) add(m M) {
	if s.large != nil {
		s.large.Add(m)
		return
	}
	for _, existing := range s.small {
		if existing == m {
			return
		}
	}
	s.small = append(s.small, m)
	if len(s.small) > denseSetThreshold {
		s.large = hashset.New()
		for _, existing := range s.small {
			s.large.Add(existing)
		}
		s.small = nil
	}
}

func (s *denseSet[M]) remove(m M) {
	if s.large != nil {
		s.large.Remove(m)
		return
	}
	for i, existing := range s.small {
		if existing == m {
			last := len(s.small) - 1
			s.small[i] = s.small[last]
			s.small = s.small[:last]
			return
		}
	}
}

func (s *denseSet[M]) len() int {
	if s.large != nil {
		return s.large.Size()
	}
	return len(s.small)
}

func (s *denseSet[M]) all(yield func(M) bool) {
	if s.large != nil {
		for _, v := range s.large.Values() {
			if !yield(v.(M)) {
				return
			}
		}
		return
	}
	for _, m := range s.small {
		if !yield(m) {
			return
		}
	}
}

// DenseBookkeeping is the reverse index for relations whose both key spaces are small dense
// integers, such as allocation indexes.
type DenseBookkeeping[O, M query.DenseKey] struct {
	reverse *query.Dense[O, *denseSet[M]]
	forward *query.Dense[M, O]
}

var _ Bookkeeping[uint32, uint32] = (*DenseBookkeeping[uint32, uint32])(nil)

// NewDenseBookkeeping is a function that returns an empty DenseBookkeeping.
func NewDenseBookkeeping[O, M query.DenseKey]() *DenseBookkeeping[O, M] {
	return &DenseBookkeeping[O, M]{
		reverse: query.NewDense[O, *denseSet[M]](0),
		forward: query.NewDense[M, O](0),
	}
}

func (b *DenseBookkeeping[O, M]) Apply(changes query.Changes[M, O]) {
	for many, change := range changes.All() {
		if one, ok := change.NewValue(); ok {
			b.link(many, one)
			continue
		}
		b.unlink(many)
	}
}

func (b *DenseBookkeeping[O, M]) link(many M, one O) {
	if current, ok := b.forward.Access(many); ok {
		if current == one {
			return
		}
		b.unlink(many)
	}
	set, ok := b.reverse.Access(one)
	if !ok {
		set = &denseSet[M]{}
		b.reverse.Set(one, set)
	}
	set.add(many)
	b.forward.Set(many, one)
}

func (b *DenseBookkeeping[O, M]) unlink(many M) {
	one, ok := b.forward.Delete(many)
	if !ok {
		return
	}
	set, _ := b.reverse.Access(one)
	set.remove(many)
	if set.len() == 0 {
		b.reverse.Delete(one)
	}
}

func (b *DenseBookkeeping[O, M]) AccessMulti(one O) iter.Seq[M] {
	return func(yield func(M) bool) {
		set, ok := b.reverse.Access(one)
		if !ok {
			return
		}
		set.all(yield)
	}
}

func (b *DenseBookkeeping[O, M]) Keys() iter.Seq[O] {
	return func(yield func(O) bool) {
		for one := range b.reverse.All() {
			if !yield(one) {
				return
			}
		}
	}
}

func (b *DenseBookkeeping[O, M]) ShrinkToFit() {
	b.reverse.ShrinkToFit()
	b.forward.ShrinkToFit()
}
