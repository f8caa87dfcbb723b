package relation

import (
	"iter"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/reactive"
	"github.com/openfga/reactive/pkg/tick"
)

type stepper struct {
	id uint64
}

func (s *stepper) next() *tick.Context {
	s.id++
	return tick.Noop(s.id)
}

func changeStrings[K comparable, V any](c query.Changes[K, V]) map[K]string {
	out := map[K]string{}
	for k, v := range c.All() {
		out[k] = v.String()
	}
	return out
}

func sorted[M int | uint32](seq iter.Seq[M]) []M {
	out := slices.Collect(seq)
	slices.Sort(out)
	return out
}

func TestHashBookkeeping(t *testing.T) {
	b := NewHashBookkeeping[string, int]()

	b.Apply(query.ChangeMap[int, string]{
		1: query.NewInsert("A"),
		2: query.NewInsert("A"),
		3: query.NewInsert("B"),
	})
	require.Equal(t, []int{1, 2}, sorted(b.AccessMulti("A")))
	require.Equal(t, []int{3}, sorted(b.AccessMulti("B")))

	t.Run("reassign_to_same_one_is_noop", func(t *testing.T) {
		b.Apply(query.ChangeMap[int, string]{2: query.NewDelta("A", "A")})
		require.Equal(t, []int{1, 2}, sorted(b.AccessMulti("A")))
		owner, ok := b.Owner(2)
		require.True(t, ok)
		require.Equal(t, "A", owner)
	})

	t.Run("duplicate_delivery_is_idempotent", func(t *testing.T) {
		move := query.ChangeMap[int, string]{2: query.NewDelta("B", "A")}
		b.Apply(move)
		b.Apply(move)
		require.Equal(t, []int{1}, sorted(b.AccessMulti("A")))
		require.Equal(t, []int{2, 3}, sorted(b.AccessMulti("B")))
	})

	t.Run("empty_sets_are_pruned", func(t *testing.T) {
		b.Apply(query.ChangeMap[int, string]{1: query.NewRemove("A")})
		b.Apply(query.ChangeMap[int, string]{1: query.NewRemove("A")})
		require.Empty(t, slices.Collect(b.AccessMulti("A")))
		require.ElementsMatch(t, []string{"B"}, slices.Collect(b.Keys()))
	})

	b.ShrinkToFit()
	require.Equal(t, []int{2, 3}, sorted(b.AccessMulti("B")))
}

func TestDenseBookkeepingFallsBackToHashSet(t *testing.T) {
	b := NewDenseBookkeeping[uint32, uint32]()

	changes := query.ChangeMap[uint32, uint32]{}
	for m := range uint32(300) {
		changes[m] = query.NewInsert(m % 2)
	}
	b.Apply(changes)

	set, ok := b.reverse.Access(0)
	require.True(t, ok)
	require.NotNil(t, set.large)
	require.Len(t, slices.Collect(b.AccessMulti(0)), 150)
	require.Len(t, slices.Collect(b.AccessMulti(1)), 150)

	// move every odd key to 0
	moves := query.ChangeMap[uint32, uint32]{}
	for m := uint32(1); m < 300; m += 2 {
		moves[m] = query.NewDelta(uint32(0), uint32(1))
	}
	b.Apply(moves)
	b.Apply(moves)
	require.Len(t, slices.Collect(b.AccessMulti(0)), 300)
	require.Empty(t, slices.Collect(b.AccessMulti(1)))
	require.Equal(t, []uint32{0}, slices.Collect(b.Keys()))

	small := NewDenseBookkeeping[uint32, uint32]()
	small.Apply(query.ChangeMap[uint32, uint32]{5: query.NewInsert(uint32(2)), 6: query.NewInsert(uint32(2))})
	small.Apply(query.ChangeMap[uint32, uint32]{5: query.NewRemove(uint32(2))})
	require.Equal(t, []uint32{6}, sorted(small.AccessMulti(2)))
	small.ShrinkToFit()
	require.Equal(t, []uint32{6}, sorted(small.AccessMulti(2)))
}

// fanoutFixture holds the edge source (many -> one) and the value source (one -> value).
type fanoutFixture struct {
	edges  *reactive.Source[int, string]
	values *reactive.Source[string, int]
	out    reactive.ReactiveQuery[int, int]
}

func newFanoutFixture(t *testing.T) *fanoutFixture {
	f := &fanoutFixture{
		edges:  reactive.NewSource[int, string](),
		values: reactive.NewSource[string, int](),
	}
	f.out = Fanout[string, int, int](f.values, NewHashRelation[string, int](f.edges))
	t.Cleanup(func() {
		_ = f.edges.Close()
		_ = f.values.Close()
	})
	return f
}

func TestFanoutScenario(t *testing.T) {
	var ticks stepper
	f := newFanoutFixture(t)

	f.edges.Insert(1, "A")
	f.edges.Insert(2, "A")
	f.edges.Insert(3, "A")
	f.values.Insert("A", 10)
	f.values.Insert("B", 20)

	changes, view := f.out.Poll(ticks.next())
	require.Equal(t, map[int]string{1: "Delta(10, None)", 2: "Delta(10, None)", 3: "Delta(10, None)"}, changeStrings(changes))
	require.Equal(t, map[int]int{1: 10, 2: 10, 3: 10}, maps.Collect(view.All()))

	f.edges.Insert(2, "B")
	f.values.Insert("A", 15)

	changes, view = f.out.Poll(ticks.next())
	require.Equal(t, map[int]string{
		1: "Delta(15, 10)",
		2: "Delta(20, 10)",
		3: "Delta(15, 10)",
	}, changeStrings(changes))
	require.Equal(t, map[int]int{1: 15, 2: 20, 3: 15}, maps.Collect(view.All()))
}

func TestFanoutEdgeAndValueChangeEmitOnce(t *testing.T) {
	var ticks stepper
	f := newFanoutFixture(t)

	f.edges.Insert(1, "A")
	f.values.Insert("A", 1)
	f.values.Insert("B", 2)
	f.out.Poll(ticks.next())

	// the new owner changes value in the same tick the edge moves
	f.edges.Insert(1, "B")
	f.values.Insert("B", 3)
	changes, _ := f.out.Poll(ticks.next())
	require.Equal(t, map[int]string{1: "Delta(3, 1)"}, changeStrings(changes))

	// moving away and back within one tick reports the unchanged value once
	f.edges.Insert(1, "A")
	f.edges.Insert(1, "B")
	changes, _ = f.out.Poll(ticks.next())
	require.Equal(t, map[int]string{1: "Delta(3, 3)"}, changeStrings(changes))
}

func TestFanoutOwnerRemovalAndEdgeRemoval(t *testing.T) {
	var ticks stepper
	f := newFanoutFixture(t)

	f.edges.Insert(1, "A")
	f.edges.Insert(2, "A")
	f.values.Insert("A", 7)
	f.out.Poll(ticks.next())

	f.values.Remove("A")
	f.edges.Remove(2)
	changes, view := f.out.Poll(ticks.next())
	require.Equal(t, map[int]string{1: "Remove(7)", 2: "Remove(7)"}, changeStrings(changes))
	require.Empty(t, maps.Collect(view.All()))

	// an edge to a one with no value yields nothing until the value arrives
	f.edges.Insert(3, "C")
	changes, _ = f.out.Poll(ticks.next())
	require.Empty(t, changeStrings(changes))

	f.values.Insert("C", 9)
	changes, view = f.out.Poll(ticks.next())
	require.Equal(t, map[int]string{3: "Delta(9, None)"}, changeStrings(changes))
	v, ok := view.Access(3)
	require.True(t, ok)
	require.Equal(t, 9, v)
}

func TestFanoutDenseRelation(t *testing.T) {
	var ticks stepper
	edges := reactive.NewSource[uint32, uint32]()
	values := reactive.NewSource[uint32, string]()
	t.Cleanup(func() { _ = edges.Close(); _ = values.Close() })

	out := Fanout[uint32, uint32, string](values, NewDenseRelation[uint32, uint32](edges))
	edges.Insert(10, 0)
	edges.Insert(11, 1)
	values.Insert(0, "root")
	values.Insert(1, "child")
	out.Poll(ticks.next())

	edges.Insert(11, 0)
	changes, _ := out.Poll(ticks.next())
	require.Equal(t, map[uint32]string{11: "Delta(root, child)"}, changeStrings(changes))

	out.Request(reactive.ShrinkToFit)
}

func TestManyToOneReduce(t *testing.T) {
	var ticks stepper
	members := reactive.NewSource[int, struct{}]()
	edges := reactive.NewSource[int, string]()
	t.Cleanup(func() { _ = members.Close(); _ = edges.Close() })

	used := ManyToOneReduce[string, int, struct{}](members, edges)

	edges.Insert(1, "mat")
	edges.Insert(2, "mat")
	edges.Insert(3, "tex")
	members.Insert(1, struct{}{})
	members.Insert(2, struct{}{})

	changes, view := used.Poll(ticks.next())
	require.Equal(t, map[string]string{"mat": "Delta({}, None)"}, changeStrings(changes))
	require.True(t, query.Contains(view, "mat"))
	require.False(t, query.Contains(view, "tex"))

	// one reference left, still present
	members.Remove(1)
	changes, _ = used.Poll(ticks.next())
	require.Empty(t, changeStrings(changes))

	// re-pointing the last reference moves the one
	edges.Insert(2, "tex")
	changes, view = used.Poll(ticks.next())
	require.Equal(t, map[string]string{"mat": "Remove({})", "tex": "Delta({}, None)"}, changeStrings(changes))
	require.Equal(t, []string{"tex"}, slices.Collect(query.Keys(view)))

	used.Request(reactive.ShrinkToFit)
}

func TestOneToOne(t *testing.T) {
	var ticks stepper
	src := reactive.NewSource[string, int]()
	t.Cleanup(func() { _ = src.Close() })

	rev := OneToOne[string, int](src)
	src.Insert("a", 1)
	src.Insert("b", 2)
	changes, view := rev.Poll(ticks.next())
	require.Equal(t, map[int]string{1: "Delta(a, None)", 2: "Delta(b, None)"}, changeStrings(changes))

	// swapping values within a tick is allowed
	src.Insert("a", 2)
	src.Insert("b", 1)
	changes, view = rev.Poll(ticks.next())
	require.Equal(t, map[int]string{1: "Delta(b, a)", 2: "Delta(a, b)"}, changeStrings(changes))
	require.Equal(t, map[int]string{1: "b", 2: "a"}, maps.Collect(view.All()))

	src.Remove("a")
	changes, _ = rev.Poll(ticks.next())
	require.Equal(t, map[int]string{2: "Remove(a)"}, changeStrings(changes))

	src.Insert("c", 1)
	require.Panics(t, func() {
		rev.Poll(ticks.next())
	})
}
