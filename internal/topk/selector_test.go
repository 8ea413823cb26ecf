package topk

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func distances[T any](s *Selector[T]) []float64 {
	out := make([]float64, 0, s.Len())
	for _, e := range s.Entries() {
		out = append(out, e.Distance)
	}
	return out
}

func TestInsertKeepsLowest(t *testing.T) {
	s := New[int](3)
	for i, d := range []float64{5, 1, 4, 2, 3, 0.5} {
		s.Insert(d, i)
	}

	assert.Equal(t, []float64{0.5, 1, 2}, distances(s))
	items := []int{}
	for _, e := range s.Entries() {
		items = append(items, e.Item)
	}
	assert.Equal(t, []int{5, 1, 3}, items)
}

func TestWorst(t *testing.T) {
	s := New[string](2)
	_, ok := s.Worst()
	assert.False(t, ok)
	assert.True(t, math.IsInf(s.Threshold(), 1))

	s.Insert(3, "a")
	_, ok = s.Worst()
	assert.False(t, ok, "not full yet")

	s.Insert(1, "b")
	w, ok := s.Worst()
	require.True(t, ok)
	assert.Equal(t, 3.0, w)
	assert.Equal(t, 3.0, s.Threshold())

	s.Insert(2, "c")
	w, _ = s.Worst()
	assert.Equal(t, 2.0, w)
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	s := New[int](3)
	s.Insert(1, 0)
	s.Insert(1, 1)
	s.Insert(1, 2)
	s.Insert(1, 3)

	items := []int{}
	for _, e := range s.Entries() {
		items = append(items, e.Item)
	}
	assert.Equal(t, []int{0, 1, 2}, items)
}

func TestZeroK(t *testing.T) {
	s := New[int](0)
	s.Insert(1, 1)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Worst()
	assert.False(t, ok)
}

func TestInvariantUnderRandomInserts(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		k := rng.Intn(8) + 1
		n := rng.Intn(30)
		s := New[int](k)
		all := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			d := math.Round(rng.Float64()*20) / 2
			all = append(all, d)
			s.Insert(d, i)

			require.LessOrEqual(t, s.Len(), k)
			require.True(t, sort.Float64sAreSorted(distances(s)))
		}

		want := min(k, n)
		assert.Equal(t, want, s.Len())
		sort.Float64s(all)
		assert.Equal(t, all[:want], distances(s))
	}
}

func TestMergeMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ds := make([]float64, 40)
	for i := range ds {
		ds[i] = float64(rng.Intn(10))
	}

	seq := New[int](7)
	for i, d := range ds {
		seq.Insert(d, i)
	}

	merged := New[int](7)
	for start := 0; start < len(ds); start += 13 {
		part := New[int](7)
		for i := start; i < min(start+13, len(ds)); i++ {
			part.Insert(ds[i], i)
		}
		merged.Merge(part)
	}

	assert.Equal(t, seq.Entries(), merged.Entries())
}
