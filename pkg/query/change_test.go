package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueChangeMerge(t *testing.T) {
	tests := map[string]struct {
		first    ValueChange[int]
		later    ValueChange[int]
		keep     bool
		expected ValueChange[int]
	}{
		`delta_then_delta_keeps_first_previous`: {
			first:    NewDelta(2, 1),
			later:    NewDelta(3, 2),
			keep:     true,
			expected: NewDelta(3, 1),
		},
		`insert_then_delta_stays_insert`: {
			first:    NewInsert(1),
			later:    NewDelta(2, 1),
			keep:     true,
			expected: NewInsert(2),
		},
		`insert_then_remove_cancels`: {
			first: NewInsert(1),
			later: NewRemove(1),
			keep:  false,
		},
		`delta_then_remove_removes_original`: {
			first:    NewDelta(2, 1),
			later:    NewRemove(2),
			keep:     true,
			expected: NewRemove(1),
		},
		`remove_then_insert_becomes_delta`: {
			first:    NewRemove(1),
			later:    NewInsert(5),
			keep:     true,
			expected: NewDelta(5, 1),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			merged := tc.first
			keep := merged.Merge(tc.later)
			require.Equal(t, tc.keep, keep)
			if keep {
				require.Equal(t, tc.expected, merged)
			}
		})
	}
}

func TestValueChangeMergeDoubleRemovePanics(t *testing.T) {
	c := NewRemove(1)
	require.Panics(t, func() {
		c.Merge(NewRemove(1))
	})
}

func TestValueChangeAccessors(t *testing.T) {
	v, ok := NewInsert(3).NewValue()
	require.True(t, ok)
	require.Equal(t, 3, v)

	_, ok = NewInsert(3).OldValue()
	require.False(t, ok)
	require.True(t, NewInsert(3).IsInsert())

	old, ok := NewDelta(3, 2).OldValue()
	require.True(t, ok)
	require.Equal(t, 2, old)

	_, ok = NewRemove(4).NewValue()
	require.False(t, ok)
	old, ok = NewRemove(4).OldValue()
	require.True(t, ok)
	require.Equal(t, 4, old)
	require.True(t, NewRemove(4).IsRemove())

	require.Equal(t, "Delta(3, None)", NewInsert(3).String())
	require.Equal(t, "Delta(3, 2)", NewDelta(3, 2).String())
	require.Equal(t, "Remove(4)", NewRemove(4).String())
}

func TestFilterMapChange(t *testing.T) {
	even := func(v int) (int, bool) {
		return v * 10, v%2 == 0
	}

	tests := map[string]struct {
		in       ValueChange[int]
		keep     bool
		expected ValueChange[int]
	}{
		`both_kept`:        {in: NewDelta(4, 2), keep: true, expected: NewDelta(40, 20)},
		`new_filtered_out`: {in: NewDelta(3, 2), keep: true, expected: NewRemove(20)},
		`old_filtered_out`: {in: NewDelta(4, 3), keep: true, expected: NewInsert(40)},
		`both_filtered`:    {in: NewDelta(5, 3), keep: false},
		`remove_kept`:      {in: NewRemove(2), keep: true, expected: NewRemove(20)},
		`remove_filtered`:  {in: NewRemove(3), keep: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			out, keep := FilterMapChange(tc.in, even)
			require.Equal(t, tc.keep, keep)
			if keep {
				require.Equal(t, tc.expected, out)
			}
		})
	}
}

func TestChangeMapMerge(t *testing.T) {
	m := make(ChangeMap[string, int])
	m.Merge("a", NewInsert(1))
	m.Merge("a", NewRemove(1))
	_, ok := m.Access("a")
	require.False(t, ok, "insert then remove within one tick must be invisible")

	m.Merge("b", NewDelta(2, 1))
	m.Merge("b", NewDelta(3, 2))
	c, ok := m.Access("b")
	require.True(t, ok)
	require.Equal(t, NewDelta(3, 1), c)
	require.Equal(t, 1, Len[string, ValueChange[int]](m))
}
