package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMakePrevious(t *testing.T) {
	current := HashMap[string, int]{"a": 2, "c": 3, "d": 4}
	changes := ChangeMap[string, int]{
		"a": NewDelta(2, 1),
		"b": NewRemove(5),
		"c": NewInsert(3),
	}

	previous := MakePrevious[string, int](current, changes)

	v, ok := previous.Access("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = previous.Access("b")
	require.True(t, ok)
	require.Equal(t, 5, v)

	_, ok = previous.Access("c")
	require.False(t, ok)

	expected := HashMap[string, int]{"a": 1, "b": 5, "d": 4}
	if diff := cmp.Diff(expected, Materialize(previous)); diff != "" {
		t.Fatalf("previous view mismatch (-want +got):\n%s", diff)
	}
}

func TestMakePreviousChecksTick(t *testing.T) {
	t.Run("removed_key_still_present", func(t *testing.T) {
		require.Panics(t, func() {
			MakePrevious[string, int](HashMap[string, int]{"a": 1}, ChangeMap[string, int]{"a": NewRemove(1)})
		})
	})

	t.Run("changed_key_missing", func(t *testing.T) {
		require.Panics(t, func() {
			MakePrevious[string, int](HashMap[string, int]{}, ChangeMap[string, int]{"a": NewInsert(1)})
		})
	})
}

func TestDense(t *testing.T) {
	d := NewDense[uint32, string](0)

	_, had := d.Set(3, "c")
	require.False(t, had)
	_, had = d.Set(1, "a")
	require.False(t, had)
	prev, had := d.Set(3, "cc")
	require.True(t, had)
	require.Equal(t, "c", prev)
	require.Equal(t, 2, d.Len())

	*d.Ref(1) = "aa"
	require.Nil(t, d.Ref(2))

	require.Equal(t, HashMap[uint32, string]{1: "aa", 3: "cc"}, Materialize[uint32, string](d))

	removed, ok := d.Delete(3)
	require.True(t, ok)
	require.Equal(t, "cc", removed)
	_, ok = d.Delete(3)
	require.False(t, ok)

	d.ShrinkToFit()
	v, ok := d.Access(1)
	require.True(t, ok)
	require.Equal(t, "aa", v)
	require.Equal(t, 1, d.Len())
}

func TestLocked(t *testing.T) {
	l := NewLocked[int, int]()
	l.Update(func(m map[int]int) {
		m[1] = 10
		m[2] = 20
	})

	v, ok := l.Access(2)
	require.True(t, ok)
	require.Equal(t, 20, v)

	snapshot := l.Snapshot()
	l.Update(func(m map[int]int) {
		delete(m, 1)
	})
	l.ShrinkToFit()

	require.Equal(t, HashMap[int, int]{1: 10, 2: 20}, snapshot)
	require.Equal(t, 1, Len[int, int](l))
}

func TestBatch(t *testing.T) {
	first := ToBatch[int, string](ChangeMap[int, string]{
		1: NewInsert("a"),
		2: NewRemove("b"),
	})
	require.False(t, first.IsEmpty())
	require.Equal(t, []int{2}, first.Removed)

	second := &Batch[int, string]{
		Removed:        []int{1},
		UpdateOrInsert: []KV[int, string]{{Key: 2, Value: "bb"}},
	}

	merged := MergeBatches(first, second)
	require.Equal(t, []int{1}, merged.Removed)
	require.Equal(t, []KV[int, string]{{Key: 2, Value: "bb"}}, merged.UpdateOrInsert)
}
