package memtable_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberdb/internal/storage/keys"
	"emberdb/internal/storage/memtable"
	"emberdb/pkg/errors"
)

func TestMemTable_BasicOperations(t *testing.T) {
	mt := memtable.NewSkipListMemTable()

	require.NoError(t, mt.Add(1, keys.TypeValue, []byte("key1"), []byte("value1")))

	val, ok := mt.Get([]byte("key1"))
	assert.True(t, ok)
	assert.Equal(t, []byte("value1"), val)

	// the returned value is a copy
	val[0] = 'X'
	val, _ = mt.Get([]byte("key1"))
	assert.Equal(t, []byte("value1"), val)

	_, ok = mt.Get([]byte("nonexist"))
	assert.False(t, ok)
	_, ok = mt.Get([]byte("key"))
	assert.False(t, ok)

	assert.Equal(t, 1, mt.EntriesCnt())
	assert.Positive(t, mt.ApproximateMemoryUsage())
}

func TestMemTable_LatestVersionWins(t *testing.T) {
	mt := memtable.NewSkipListMemTable()

	require.NoError(t, mt.Add(1, keys.TypeValue, []byte("k"), []byte("v1")))
	require.NoError(t, mt.Add(3, keys.TypeValue, []byte("k"), []byte("v3")))
	// an older sequence arriving late does not shadow the newer one
	require.NoError(t, mt.Add(2, keys.TypeValue, []byte("k"), []byte("v2")))

	val, ok := mt.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("v3"), val)
	assert.Equal(t, 3, mt.EntriesCnt())
}

func TestMemTable_Tombstone(t *testing.T) {
	mt := memtable.NewSkipListMemTable()

	require.NoError(t, mt.Add(1, keys.TypeValue, []byte("k"), []byte("v1")))
	require.NoError(t, mt.Add(2, keys.TypeDeletion, []byte("k"), nil))

	_, ok := mt.Get([]byte("k"))
	assert.False(t, ok)

	it := mt.NewIterator()
	it.Seek([]byte("k"))
	require.True(t, it.Valid())
	assert.Equal(t, keys.TypeDeletion, it.Item().Type)
	assert.Equal(t, uint64(2), it.Item().Seq)

	require.NoError(t, mt.Add(3, keys.TypeValue, []byte("k"), []byte("v3")))
	val, ok := mt.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("v3"), val)
}

func TestMemTable_EmptyKeyAndValue(t *testing.T) {
	mt := memtable.NewSkipListMemTable()

	require.NoError(t, mt.Add(1, keys.TypeValue, []byte{}, []byte("empty key")))
	require.NoError(t, mt.Add(2, keys.TypeValue, []byte("empty value"), nil))

	val, ok := mt.Get([]byte{})
	assert.True(t, ok)
	assert.Equal(t, []byte("empty key"), val)

	val, ok = mt.Get([]byte("empty value"))
	assert.True(t, ok)
	assert.Empty(t, val)
}

func TestMemTable_DuplicateVersionRejected(t *testing.T) {
	mt := memtable.NewSkipListMemTable()

	require.NoError(t, mt.Add(5, keys.TypeValue, []byte("k"), []byte("a")))
	err := mt.Add(5, keys.TypeValue, []byte("k"), []byte("b"))
	assert.ErrorIs(t, err, errors.ErrDuplicateKey)

	val, _ := mt.Get([]byte("k"))
	assert.Equal(t, []byte("a"), val)
	assert.Equal(t, 1, mt.EntriesCnt())
}

func TestMemTable_IteratorOrder(t *testing.T) {
	mt := memtable.NewSkipListMemTable()

	writes := []struct {
		seq uint64
		key string
	}{
		{1, "b"}, {2, "a"}, {3, "c"}, {4, "a"}, {5, "b"},
	}
	for _, w := range writes {
		require.NoError(t, mt.Add(w.seq, keys.TypeValue, []byte(w.key), []byte(fmt.Sprint(w.seq))))
	}

	var got []string
	it := mt.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, fmt.Sprintf("%s@%d", it.Item().Key, it.Item().Seq))
	}
	assert.Equal(t, []string{"a@4", "a@2", "b@5", "b@1", "c@3"}, got)
}

func TestMemTable_MemoryUsageGrows(t *testing.T) {
	mt := memtable.NewSkipListMemTable()
	start := mt.ApproximateMemoryUsage()
	prev := start

	// a value that fits the current block remainder costs no new block
	value := make([]byte, 2000)
	for i := 0; i < 10; i++ {
		require.NoError(t, mt.Add(uint64(i+1), keys.TypeValue, []byte(fmt.Sprintf("key%02d", i)), value))
		usage := mt.ApproximateMemoryUsage()
		assert.GreaterOrEqual(t, usage, prev)
		prev = usage
	}
	assert.Greater(t, prev, start)
	assert.GreaterOrEqual(t, prev, uint64(10*2000))
}

func TestMemTable_ConcurrentReadDuringWrite(t *testing.T) {
	mt := memtable.NewSkipListMemTable()
	const numReaders = 8
	const numWrites = 2000

	var written atomic.Int64
	var wg sync.WaitGroup
	wg.Add(numReaders)

	for r := 0; r < numReaders; r++ {
		go func() {
			defer wg.Done()
			for written.Load() < numWrites {
				n := written.Load()
				for i := int64(0); i < n && i < 100; i++ {
					key := []byte(fmt.Sprintf("key%05d", i))
					val, ok := mt.Get(key)
					if !ok || string(val) != fmt.Sprintf("value%05d", i) {
						t.Errorf("key %s: got %q, %v", key, val, ok)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < numWrites; i++ {
		key := []byte(fmt.Sprintf("key%05d", i))
		value := []byte(fmt.Sprintf("value%05d", i))
		require.NoError(t, mt.Add(uint64(i+1), keys.TypeValue, key, value))
		written.Store(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, numWrites, mt.EntriesCnt())
}
