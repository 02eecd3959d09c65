package skiplist

import (
	"cmp"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberdb/internal/storage/arena"
	"emberdb/pkg/errors"
)

func newIntList(opts ...Option) *SkipList[int] {
	return New[int](arena.New(), cmp.Compare[int], opts...)
}

func collect(s *SkipList[int]) []int {
	var out []int
	it := s.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		out = append(out, it.Key())
	}
	return out
}

func TestSkipList_Empty(t *testing.T) {
	s := newIntList()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s.Height())
	assert.False(t, s.Contains(10))

	it := s.NewIterator()
	it.SeekToFirst()
	assert.False(t, it.Valid())
	it.Seek(100)
	assert.False(t, it.Valid())
}

func TestSkipList_InsertAndContains(t *testing.T) {
	s := newIntList(WithRandSource(rand.NewSource(1)))
	rnd := rand.New(rand.NewSource(2))

	inserted := make(map[int]struct{})
	for i := 0; i < 2000; i++ {
		v := rnd.Intn(5000)
		err := s.Insert(v)
		if _, ok := inserted[v]; ok {
			assert.ErrorIs(t, err, errors.ErrDuplicateKey)
			continue
		}
		require.NoError(t, err)
		inserted[v] = struct{}{}
	}

	assert.Equal(t, len(inserted), s.Len())
	for i := 0; i < 5000; i++ {
		_, ok := inserted[i]
		assert.Equal(t, ok, s.Contains(i), "key %d", i)
	}

	want := make([]int, 0, len(inserted))
	for v := range inserted {
		want = append(want, v)
	}
	sort.Ints(want)
	assert.Equal(t, want, collect(s))
}

func TestSkipList_DuplicateLeavesListUnchanged(t *testing.T) {
	s := newIntList()
	require.NoError(t, s.Insert(3))
	require.NoError(t, s.Insert(1))

	assert.ErrorIs(t, s.Insert(3), errors.ErrDuplicateKey)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []int{1, 3}, collect(s))
}

func TestSkipList_Seek(t *testing.T) {
	s := newIntList()
	for _, v := range []int{10, 20, 30, 40} {
		require.NoError(t, s.Insert(v))
	}

	tests := []struct {
		target int
		want   int
		valid  bool
	}{
		{target: 5, want: 10, valid: true},
		{target: 10, want: 10, valid: true},
		{target: 11, want: 20, valid: true},
		{target: 40, want: 40, valid: true},
		{target: 41, valid: false},
	}

	it := s.NewIterator()
	for _, tt := range tests {
		it.Seek(tt.target)
		require.Equal(t, tt.valid, it.Valid(), "seek %d", tt.target)
		if tt.valid {
			assert.Equal(t, tt.want, it.Key(), "seek %d", tt.target)
		}
	}
}

func TestSkipList_Remove(t *testing.T) {
	s := newIntList(WithRandSource(rand.NewSource(5)))
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Insert(i))
	}

	for i := 0; i < 100; i += 2 {
		assert.True(t, s.Remove(i))
	}
	assert.False(t, s.Remove(0))
	assert.False(t, s.Remove(1000))
	assert.Equal(t, 50, s.Len())

	got := collect(s)
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, 2*i+1, v)
	}

	for i := 1; i < 100; i += 2 {
		require.True(t, s.Remove(i))
	}
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s.Height())
	assert.Empty(t, collect(s))

	// the list stays usable after being emptied
	require.NoError(t, s.Insert(7))
	assert.Equal(t, []int{7}, collect(s))
}

func TestSkipList_RandomLevelDistribution(t *testing.T) {
	s := newIntList(WithRandSource(rand.NewSource(42)))
	const n = 20000
	for i := 0; i < n; i++ {
		require.NoError(t, s.Insert(i))
	}

	heights := make(map[int]int)
	for x := s.head.loadNext(0); x != nil; x = x.loadNext(0) {
		heights[len(x.next)]++
	}

	tallest := 0
	for h := range heights {
		assert.GreaterOrEqual(t, h, 1)
		assert.LessOrEqual(t, h, MaxLevel)
		tallest = max(tallest, h)
	}
	assert.Equal(t, tallest, s.Height())

	assert.InDelta(t, 0.5, float64(heights[1])/n, 0.02)
	assert.InDelta(t, 0.25, float64(heights[2])/n, 0.02)
}

func TestSkipList_MaxLevelOption(t *testing.T) {
	s := newIntList(WithMaxLevel(1), WithRandSource(rand.NewSource(3)))
	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Insert(i))
	}
	assert.Equal(t, 1, s.Height())

	clamped := newIntList(WithMaxLevel(100))
	assert.Equal(t, MaxLevel, clamped.maxLevel)
}

func TestSkipList_DeterministicWithSameSource(t *testing.T) {
	a := newIntList(WithRandSource(rand.NewSource(9)))
	b := newIntList(WithRandSource(rand.NewSource(9)))
	for i := 0; i < 500; i++ {
		require.NoError(t, a.Insert(i))
		require.NoError(t, b.Insert(i))
	}

	x, y := a.head.loadNext(0), b.head.loadNext(0)
	for x != nil && y != nil {
		assert.Equal(t, len(x.next), len(y.next))
		x, y = x.loadNext(0), y.loadNext(0)
	}
	assert.Nil(t, x)
	assert.Nil(t, y)
}

func TestSkipList_ConcurrentReadDuringInsert(t *testing.T) {
	s := newIntList()
	const n = 10000

	keys := rand.New(rand.NewSource(11)).Perm(n)
	var done atomic.Bool
	var wg sync.WaitGroup

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				prev, count := -1, 0
				it := s.NewIterator()
				for it.SeekToFirst(); it.Valid(); it.Next() {
					if it.Key() <= prev {
						t.Errorf("iteration out of order: %d after %d", it.Key(), prev)
						return
					}
					prev = it.Key()
					count++
				}
				if count > n {
					t.Errorf("saw %d values, more than inserted", count)
					return
				}
				// Len grows only after a value is linked
				for i := 0; i < s.Len() && i < 50; i++ {
					if !s.Contains(keys[i]) {
						t.Errorf("inserted key %d not found", keys[i])
						return
					}
				}
			}
		}()
	}

	for _, k := range keys {
		require.NoError(t, s.Insert(k))
	}
	done.Store(true)
	wg.Wait()

	assert.Equal(t, n, s.Len())
	for i := 0; i < n; i++ {
		assert.True(t, s.Contains(i))
	}
}
