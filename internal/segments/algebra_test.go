package segments

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeflate(t *testing.T) {
	t.Run("groups_consecutive_runs", func(t *testing.T) {
		got := Deflate([]uint64{1, 2, 3, 5, 6, 7})
		assert.Equal(t, List{Range(1, 3), Single(5), Range(6, 7)}, got)
	})

	t.Run("singleton_stays_bare", func(t *testing.T) {
		got := Deflate([]uint64{5})
		require.Len(t, got, 1)
		assert.Equal(t, "5", got[0].String())
	})

	t.Run("unsorted_input", func(t *testing.T) {
		got := Deflate([]uint64{7, 1, 6, 3, 2, 5})
		assert.Equal(t, List{Range(1, 3), Range(5, 7)}, got)
	})

	t.Run("duplicates_removed", func(t *testing.T) {
		got := Deflate([]uint64{4, 4, 5, 5})
		assert.Equal(t, List{Range(4, 5)}, got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, List{}, Deflate(nil))
	})
}

func TestInflateDeflateRoundTrip(t *testing.T) {
	cases := [][]uint64{
		{1},
		{1, 2, 3},
		{1, 3, 4, 6, 7, 8, 9, 33},
		{1000, 1050, 1103, 1104, 1105, 1666},
	}
	for _, nums := range cases {
		got := Inflate(Deflate(nums))
		assert.ElementsMatch(t, nums, got)
	}
}

func TestCount(t *testing.T) {
	t.Run("mixed_list", func(t *testing.T) {
		l := List{Single(1), Single(3), Single(4), Range(6, 9), Single(33)}
		assert.Equal(t, uint64(8), Count(l))
		assert.Equal(t, uint64(len(Inflate(l))), Count(l))
	})

	t.Run("large_range_is_analytic", func(t *testing.T) {
		// Must not materialize a million numbers just to count them.
		assert.Equal(t, uint64(1_000_000), Count(List{Range(1, 1_000_000)}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, uint64(0), Count(List{}))
	})
}

func TestSubtract(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		got := Subtract([]uint64{1, 2, 3, 4}, []uint64{2, 4})
		assert.Equal(t, []uint64{1, 3}, got)
	})

	t.Run("multiset_each_unit_removes_one", func(t *testing.T) {
		got := Subtract([]uint64{5, 5, 5}, []uint64{5})
		assert.Equal(t, []uint64{5, 5}, got)
	})

	t.Run("empty_iff_fully_covered", func(t *testing.T) {
		assert.Empty(t, Subtract([]uint64{1, 2, 2}, []uint64{2, 1, 2}))
		assert.NotEmpty(t, Subtract([]uint64{1, 2, 2}, []uint64{1, 2}))
	})

	t.Run("extra_units_in_b_ignored", func(t *testing.T) {
		got := Subtract([]uint64{1}, []uint64{1, 1, 9})
		assert.Empty(t, got)
	})
}

func TestCounterSubtract(t *testing.T) {
	t.Run("bought_twice_sold_once_nets_once", func(t *testing.T) {
		got := CounterSubtract([]uint64{7, 7}, []uint64{7})
		assert.Equal(t, []uint64{7}, got)
	})

	t.Run("negative_counts_dropped", func(t *testing.T) {
		got := CounterSubtract([]uint64{1, 2}, []uint64{2, 2, 3})
		assert.Equal(t, []uint64{1}, got)
	})

	t.Run("sorted_output", func(t *testing.T) {
		got := CounterSubtract([]uint64{9, 1, 5}, nil)
		assert.Equal(t, []uint64{1, 5, 9}, got)
	})
}

func TestParse(t *testing.T) {
	t.Run("free_text", func(t *testing.T) {
		got, err := Parse("1,2,3-5, 8")
		require.NoError(t, err)
		assert.Equal(t, List{Range(1, 5), Single(8)}, got)
	})

	t.Run("serialized_list", func(t *testing.T) {
		got, err := Parse(`[1, "3-4", "6-9", 33]`)
		require.NoError(t, err)
		assert.Equal(t, List{Single(1), Range(3, 4), Range(6, 9), Single(33)}, got)
	})

	t.Run("empty_input", func(t *testing.T) {
		got, err := Parse("")
		require.NoError(t, err)
		assert.Equal(t, List{}, got)
	})

	t.Run("non_numeric_token_fails", func(t *testing.T) {
		_, err := Parse("1,abc,3")
		var segErr *InvalidSegmentsError
		require.ErrorAs(t, err, &segErr)
	})

	t.Run("inverted_range_fails", func(t *testing.T) {
		_, err := Parse("9-3")
		var segErr *InvalidSegmentsError
		require.ErrorAs(t, err, &segErr)
		assert.Equal(t, "inverted range", segErr.Reason)
	})
}

func TestHumanReadable(t *testing.T) {
	l := List{Single(1), Range(3, 4), Range(6, 9), Single(33)}
	got := HumanReadable(l)
	assert.Equal(t, "1, 3-4, 6-9, 33", got)
	assert.NotContains(t, got, "[")
	assert.NotContains(t, got, `"`)
}

func TestListJSON(t *testing.T) {
	t.Run("marshal_mixed_forms", func(t *testing.T) {
		b, err := json.Marshal(List{Single(1), Range(3, 4), Single(33)})
		require.NoError(t, err)
		assert.JSONEq(t, `[1, "3-4", 33]`, string(b))
	})

	t.Run("single_number_range_marshals_bare", func(t *testing.T) {
		b, err := json.Marshal(List{Range(5, 5)})
		require.NoError(t, err)
		assert.Equal(t, "[5]", string(b))
	})

	t.Run("unmarshal_tolerates_numeric_strings", func(t *testing.T) {
		var l List
		require.NoError(t, json.Unmarshal([]byte(`["5", 7, "9-11"]`), &l))
		assert.Equal(t, List{Single(5), Single(7), Range(9, 11)}, l)
	})

	t.Run("nil_marshals_empty_list", func(t *testing.T) {
		b, err := json.Marshal(List(nil))
		require.NoError(t, err)
		assert.Equal(t, "[]", string(b))
	})
}

func TestContainsAll(t *testing.T) {
	have := List{Range(1000, 1200), Single(1666)}
	ok, missing := ContainsAll(have, List{Single(1000), Single(1666)})
	assert.True(t, ok)
	assert.Empty(t, missing)

	ok, missing = ContainsAll(have, List{Single(1000), Single(1667)})
	assert.False(t, ok)
	assert.Equal(t, List{Single(1667)}, missing)
}

func TestOverlaps(t *testing.T) {
	ok, common := Overlaps(List{Range(1, 10)}, List{Range(8, 12)})
	assert.True(t, ok)
	assert.Equal(t, List{Range(8, 10)}, common)

	ok, _ = Overlaps(List{Range(1, 10)}, List{Range(11, 12)})
	assert.False(t, ok)
}
