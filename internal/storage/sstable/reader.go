package sstable

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"

	"emberdb/internal/cache"
	"emberdb/internal/config"
	"emberdb/internal/storage/file"
	"emberdb/internal/storage/filter"
	perrors "emberdb/pkg/errors"
)

type ReaderOption func(*Reader)

// WithComparator sets the key order the table was built in. Defaults to
// bytes.Compare.
func WithComparator(cmp Comparator) ReaderOption {
	return func(r *Reader) {
		r.cmp = cmp
	}
}

type indexEntry struct {
	lastKey []byte
	handle  BlockHandle
}

// Reader serves lookups and scans over a finished table. It is safe for
// concurrent use.
type Reader struct {
	file    file.RandomAccessFile
	cmp     Comparator
	filter  filter.Filter
	index   []indexEntry
	filters map[uint64][]byte // data block offset -> bloom bitmap
	blocks  *cache.LRUCache
	meta    Metadata
}

func NewReader(f file.RandomAccessFile, conf config.TableConfig, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		file:    f,
		cmp:     bytes.Compare,
		filter:  filter.NewBloomFilter(conf.FilterBitsPerKey),
		filters: make(map[uint64][]byte),
		blocks:  cache.NewLRUCache(conf.BlockCacheSize),
	}
	for _, opt := range opts {
		opt(r)
	}

	size := f.Size()
	if size < footerSize {
		return nil, errors.Wrapf(perrors.ErrCorruption, "table of %d bytes has no footer", size)
	}
	buf := make([]byte, footerSize)
	if _, err := f.ReadAt(buf, size-footerSize); err != nil {
		return nil, errors.Wrap(err, "read footer")
	}
	ft, err := decodeFooter(buf)
	if err != nil {
		return nil, err
	}

	if err := r.loadIndex(ft.index); err != nil {
		return nil, err
	}
	if err := r.loadFilters(ft.filter); err != nil {
		return nil, err
	}

	r.meta = Metadata{
		Entries:    int(ft.entries),
		DataBlocks: len(r.index),
		Size:       uint64(size),
	}
	if len(r.index) > 0 {
		r.meta.Largest = r.index[len(r.index)-1].lastKey
		it, err := r.dataBlockIter(r.index[0].handle)
		if err != nil {
			return nil, err
		}
		if it.First(); !it.Valid() {
			return nil, errors.Wrap(perrors.ErrCorruption, "empty first data block")
		}
		r.meta.Smallest = bytes.Clone(it.Key())
	}
	return r, nil
}

func (r *Reader) loadIndex(handle BlockHandle) error {
	block, err := r.readBlock(handle)
	if err != nil {
		return errors.Wrap(err, "read index block")
	}
	it, err := newBlockIter(block, r.cmp)
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		h, err := decodeBlockHandle(it.Value())
		if err != nil {
			return err
		}
		r.index = append(r.index, indexEntry{lastKey: bytes.Clone(it.Key()), handle: h})
	}
	return it.Err()
}

func (r *Reader) loadFilters(handle BlockHandle) error {
	block, err := r.readBlock(handle)
	if err != nil {
		return errors.Wrap(err, "read filter block")
	}
	// filter keys are not ordered by cmp; only sequential reads are used
	it, err := newBlockIter(block, bytes.Compare)
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		offset, n := binary.Uvarint(it.Key())
		if n <= 0 {
			return errors.Wrap(perrors.ErrCorruption, "bad filter block key")
		}
		r.filters[offset] = it.Value()
	}
	return it.Err()
}

// readBlock reads the block at handle and verifies its checksum.
func (r *Reader) readBlock(handle BlockHandle) ([]byte, error) {
	end := handle.Offset + handle.Size + blockTrailer
	if end < handle.Offset || end > uint64(r.file.Size()) {
		return nil, errors.Wrapf(perrors.ErrCorruption, "block %d+%d outside table", handle.Offset, handle.Size)
	}
	buf := make([]byte, handle.Size+blockTrailer)
	if _, err := r.file.ReadAt(buf, int64(handle.Offset)); err != nil {
		return nil, errors.Wrapf(err, "read block at offset %d", handle.Offset)
	}
	return verifyChecksum(buf)
}

func (r *Reader) dataBlockIter(handle BlockHandle) (*blockIter, error) {
	key := strconv.FormatUint(handle.Offset, 10)
	if block, ok := r.blocks.Get(key); ok {
		return newBlockIter(block.([]byte), r.cmp)
	}

	block, err := r.readBlock(handle)
	if err != nil {
		return nil, err
	}
	it, err := newBlockIter(block, r.cmp)
	if err != nil {
		return nil, err
	}
	r.blocks.Set(key, block)
	return it, nil
}

// Find returns the first entry whose key is not less than seekKey. When
// filterKey is non-nil, the bloom filter of the candidate block is consulted
// first and a miss reports no entry without reading the block.
func (r *Reader) Find(seekKey, filterKey []byte) (key, value []byte, found bool, err error) {
	i := sort.Search(len(r.index), func(i int) bool {
		return r.cmp(r.index[i].lastKey, seekKey) >= 0
	})
	if i == len(r.index) {
		return nil, nil, false, nil
	}
	handle := r.index[i].handle

	if filterKey != nil {
		if bitmap, ok := r.filters[handle.Offset]; ok && !r.filter.MayContain(bitmap, filterKey) {
			return nil, nil, false, nil
		}
	}

	it, err := r.dataBlockIter(handle)
	if err != nil {
		return nil, nil, false, err
	}
	it.SeekGE(seekKey)
	if !it.Valid() {
		return nil, nil, false, it.Err()
	}
	return bytes.Clone(it.Key()), bytes.Clone(it.Value()), true, nil
}

// Get returns the value stored under exactly key.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	k, v, found, err := r.Find(key, key)
	if err != nil || !found || r.cmp(k, key) != 0 {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Reader) Metadata() Metadata {
	return r.meta
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// Iterator scans a table in key order.
type Iterator struct {
	r     *Reader
	block int // index of the current data block
	it    *blockIter
	err   error
}

func (r *Reader) NewIterator() *Iterator {
	return &Iterator{r: r, block: -1}
}

func (i *Iterator) First() {
	i.loadBlock(0)
	if i.it != nil {
		i.it.First()
	}
	i.skipEmpty()
}

// SeekGE positions at the first entry not less than target.
func (i *Iterator) SeekGE(target []byte) {
	n := sort.Search(len(i.r.index), func(n int) bool {
		return i.r.cmp(i.r.index[n].lastKey, target) >= 0
	})
	i.loadBlock(n)
	if i.it != nil {
		i.it.SeekGE(target)
	}
	i.skipEmpty()
}

func (i *Iterator) Next() {
	if i.it == nil {
		return
	}
	i.it.Next()
	i.skipEmpty()
}

func (i *Iterator) Valid() bool {
	return i.err == nil && i.it != nil && i.it.Valid()
}

// Key is valid until the next move.
func (i *Iterator) Key() []byte {
	return i.it.Key()
}

func (i *Iterator) Value() []byte {
	return i.it.Value()
}

func (i *Iterator) Err() error {
	return i.err
}

// skipEmpty moves to the next block while the current one is exhausted.
func (i *Iterator) skipEmpty() {
	for i.it != nil && !i.it.Valid() {
		if err := i.it.Err(); err != nil {
			i.err = err
			i.it = nil
			return
		}
		i.loadBlock(i.block + 1)
		if i.it != nil {
			i.it.First()
		}
	}
}

func (i *Iterator) loadBlock(n int) {
	i.block = n
	i.it = nil
	if i.err != nil || n >= len(i.r.index) {
		return
	}
	it, err := i.r.dataBlockIter(i.r.index[n].handle)
	if err != nil {
		i.err = err
		return
	}
	i.it = it
}
