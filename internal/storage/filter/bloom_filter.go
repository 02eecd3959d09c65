package filter

import "github.com/twmb/murmur3"

// BloomFilter collects key hashes and turns them into a bitmap on Hash. The
// last byte of every bitmap holds the number of probes used to build it, so
// bitmaps stay readable if bitsPerKey changes later.
type BloomFilter struct {
	bitsPerKey int
	hashKeys   []uint32
}

const (
	DefaultBitsPerKey = 10

	minBits   = 64
	maxProbes = 30
)

func NewBloomFilter(bitsPerKey int) *BloomFilter {
	if bitsPerKey <= 0 {
		bitsPerKey = DefaultBitsPerKey
	}
	return &BloomFilter{
		bitsPerKey: bitsPerKey,
	}
}

func (b *BloomFilter) Add(key []byte) {
	b.hashKeys = append(b.hashKeys, murmur3.Sum32(key))
}

func (b *BloomFilter) MayContain(bitmap, key []byte) bool {
	if len(bitmap) < 2 {
		return false
	}
	k := int(bitmap[len(bitmap)-1])
	if k > maxProbes {
		// unknown encoding, treat as a match
		return true
	}
	bits := uint32(len(bitmap)-1) * 8

	h := murmur3.Sum32(key)
	delta := h>>17 | h<<15
	for i := 0; i < k; i++ {
		pos := h % bits
		if bitmap[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// GetBestK returns the probe count minimising false positives, bitsPerKey*ln2.
func (b *BloomFilter) GetBestK() int {
	k := b.bitsPerKey * 69 / 100
	return min(max(k, 1), maxProbes)
}

func (b *BloomFilter) Hash() []byte {
	bits := max(len(b.hashKeys)*b.bitsPerKey, minBits)
	bytesLen := (bits + 7) / 8
	bits = bytesLen * 8

	k := b.GetBestK()
	bitmap := make([]byte, bytesLen+1)
	for _, h := range b.hashKeys {
		delta := h>>17 | h<<15
		for i := 0; i < k; i++ {
			pos := h % uint32(bits)
			bitmap[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
	bitmap[bytesLen] = byte(k)
	return bitmap
}

func (b *BloomFilter) Reset() {
	b.hashKeys = b.hashKeys[:0]
}

func (b *BloomFilter) keyLen() int {
	return len(b.hashKeys)
}
