package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBloomFilter(t *testing.T) {
	tests := []struct {
		name       string
		bitsPerKey int
		expected   int
	}{
		{"default bits per key", 0, DefaultBitsPerKey},
		{"negative falls back to default", -3, DefaultBitsPerKey},
		{"custom bits per key", 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bf := NewBloomFilter(tt.bitsPerKey)
			assert.Equal(t, tt.expected, bf.bitsPerKey)
		})
	}
}

func TestBloomFilter_Add_MayContain(t *testing.T) {
	bf := NewBloomFilter(10)

	testKeys := [][]byte{
		[]byte("key1"),
		[]byte("key2"),
		[]byte("key3"),
	}
	for _, key := range testKeys {
		bf.Add(key)
	}

	bitmap := bf.Hash()
	for _, key := range testKeys {
		assert.True(t, bf.MayContain(bitmap, key), "MayContain(%s)", key)
	}

	// false positives are allowed, so only note them
	if bf.MayContain(bitmap, []byte("nonexistent")) {
		t.Logf("false positive for key: nonexistent")
	}
}

func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(10)
	const n = 10000
	for i := 0; i < n; i++ {
		bf.Add([]byte(fmt.Sprintf("key-%d", i)))
	}
	bitmap := bf.Hash()

	for i := 0; i < n; i++ {
		require.True(t, bf.MayContain(bitmap, []byte(fmt.Sprintf("key-%d", i))))
	}

	falsePositives := 0
	for i := 0; i < n; i++ {
		if bf.MayContain(bitmap, []byte(fmt.Sprintf("other-%d", i))) {
			falsePositives++
		}
	}
	// around 1% expected at 10 bits per key
	assert.Less(t, float64(falsePositives)/n, 0.03)
}

func TestBloomFilter_GetBestK(t *testing.T) {
	tests := []struct {
		bitsPerKey int
		want       int
	}{
		{1, 1},
		{10, 6},
		{20, 13},
		{100, 30},
	}

	for _, tt := range tests {
		bf := NewBloomFilter(tt.bitsPerKey)
		assert.Equal(t, tt.want, bf.GetBestK(), "bitsPerKey %d", tt.bitsPerKey)
	}
}

func TestBloomFilter_Reset(t *testing.T) {
	bf := NewBloomFilter(10)

	testKeys := [][]byte{
		[]byte("key1"),
		[]byte("key2"),
	}
	for _, key := range testKeys {
		bf.Add(key)
	}
	assert.Equal(t, 2, bf.keyLen())

	bf.Reset()
	assert.Equal(t, 0, bf.keyLen())

	bitmap := bf.Hash()
	for _, key := range testKeys {
		assert.False(t, bf.MayContain(bitmap, key), "after reset, key %s should not be present", key)
	}
}

func TestBloomFilter_BitmapLayout(t *testing.T) {
	bf := NewBloomFilter(10)
	bitmap := bf.Hash()
	// minimum bitmap plus the probe count byte
	assert.Len(t, bitmap, minBits/8+1)
	assert.Equal(t, byte(bf.GetBestK()), bitmap[len(bitmap)-1])

	for i := 0; i < 100; i++ {
		bf.Add([]byte{byte(i)})
	}
	assert.Len(t, bf.Hash(), 100*10/8+1)

	assert.False(t, bf.MayContain(nil, []byte("k")))
	assert.True(t, bf.MayContain([]byte{0, 0, 31}, []byte("k")))
}
