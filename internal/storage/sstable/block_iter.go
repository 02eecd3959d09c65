package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	perrors "emberdb/pkg/errors"
)

// blockIter reads a block produced by Block.Finish. Key is only valid until
// the next move; Value aliases the block.
type blockIter struct {
	cmp         Comparator
	data        []byte
	restartsOff int
	numRestarts int

	nextOffset int // start of the entry Next decodes
	key        []byte
	value      []byte
	valid      bool
	err        error
}

func newBlockIter(block []byte, cmp Comparator) (*blockIter, error) {
	if len(block) < 4 {
		return nil, errors.Wrap(perrors.ErrCorruption, "block too short")
	}
	numRestarts := int(binary.LittleEndian.Uint32(block[len(block)-4:]))
	maxRestarts := (len(block) - 4) / 4
	if numRestarts > maxRestarts {
		return nil, errors.Wrapf(perrors.ErrCorruption, "block restart count %d out of range", numRestarts)
	}
	restartsOff := len(block) - 4 - 4*numRestarts
	if numRestarts == 0 && restartsOff != 0 {
		return nil, errors.Wrap(perrors.ErrCorruption, "entries without restart point")
	}

	return &blockIter{
		cmp:         cmp,
		data:        block,
		restartsOff: restartsOff,
		numRestarts: numRestarts,
	}, nil
}

func (it *blockIter) Valid() bool {
	return it.valid
}

func (it *blockIter) Key() []byte {
	return it.key
}

func (it *blockIter) Value() []byte {
	return it.value
}

func (it *blockIter) Err() error {
	return it.err
}

func (it *blockIter) First() {
	if it.numRestarts == 0 {
		it.valid = false
		return
	}
	it.seekToRestart(0)
	it.Next()
}

// SeekGE positions at the first entry whose key is not less than target.
func (it *blockIter) SeekGE(target []byte) {
	if it.numRestarts == 0 {
		it.valid = false
		return
	}

	// last restart point whose key is below target
	left, right := 0, it.numRestarts-1
	for left < right {
		mid := (left + right + 1) / 2
		key, ok := it.restartKey(mid)
		if !ok {
			return
		}
		if it.cmp(key, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	it.seekToRestart(left)
	for it.Next(); it.valid; it.Next() {
		if it.cmp(it.key, target) >= 0 {
			return
		}
	}
}

// Next decodes the entry at nextOffset.
func (it *blockIter) Next() {
	if it.err != nil || it.nextOffset >= it.restartsOff {
		it.valid = false
		return
	}

	p := it.nextOffset
	shared, unshared, valueLen, n, ok := decodeEntryHeader(it.data[p:it.restartsOff])
	if !ok || shared > uint64(len(it.key)) {
		it.corrupt("bad entry header at offset %d", p)
		return
	}
	p += n
	limit := uint64(it.restartsOff)
	if unshared > limit || valueLen > limit || uint64(p)+unshared+valueLen > limit {
		it.corrupt("entry at offset %d overruns block", it.nextOffset)
		return
	}

	end := p + int(unshared) + int(valueLen)
	it.key = append(it.key[:shared], it.data[p:p+int(unshared)]...)
	it.value = it.data[p+int(unshared) : end]
	it.nextOffset = end
	it.valid = true
}

func (it *blockIter) seekToRestart(i int) {
	it.key = it.key[:0]
	it.nextOffset = int(binary.LittleEndian.Uint32(it.data[it.restartsOff+4*i:]))
	it.valid = false
}

func (it *blockIter) restartKey(i int) ([]byte, bool) {
	off := int(binary.LittleEndian.Uint32(it.data[it.restartsOff+4*i:]))
	if off >= it.restartsOff {
		it.corrupt("restart %d points past entries", i)
		return nil, false
	}
	shared, unshared, _, n, ok := decodeEntryHeader(it.data[off:it.restartsOff])
	if !ok || shared != 0 || unshared > uint64(it.restartsOff-off-n) {
		it.corrupt("bad restart entry %d", i)
		return nil, false
	}
	return it.data[off+n : off+n+int(unshared)], true
}

func (it *blockIter) corrupt(format string, args ...interface{}) {
	it.err = errors.Wrapf(perrors.ErrCorruption, format, args...)
	it.valid = false
}

func decodeEntryHeader(buf []byte) (shared, unshared, valueLen uint64, n int, ok bool) {
	var m int
	if shared, m = binary.Uvarint(buf); m <= 0 {
		return 0, 0, 0, 0, false
	}
	n += m
	if unshared, m = binary.Uvarint(buf[n:]); m <= 0 {
		return 0, 0, 0, 0, false
	}
	n += m
	if valueLen, m = binary.Uvarint(buf[n:]); m <= 0 {
		return 0, 0, 0, 0, false
	}
	n += m
	return shared, unshared, valueLen, n, true
}
