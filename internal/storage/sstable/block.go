package sstable

import (
	"bytes"
	"encoding/binary"

	"emberdb/pkg/utils"
)

// Block, basic unit of sstable, in sstable, it can be index, data or filter.
//
// Entries are prefix compressed against the previous key:
//
//	[shared uvarint][unshared uvarint][value_len uvarint][unshared key bytes][value]
//
// Every groupSize entries a restart point stores its key in full (shared == 0)
// and records its offset, so a reader can binary search the restart points.
type Block struct {
	record     *bytes.Buffer
	prevKey    []byte
	restarts   []uint32
	groupSize  int
	groupCnt   int // entries since the last restart point
	entriesCnt int
	assistBuf  [3 * binary.MaxVarintLen64]byte
}

func NewBlock(groupSize int) *Block {
	if groupSize <= 0 {
		groupSize = 1
	}
	return &Block{
		record:    bytes.NewBuffer([]byte{}),
		groupSize: groupSize,
	}
}

func (b *Block) Append(key, value []byte) {
	shared := 0
	if b.entriesCnt == 0 || b.groupCnt >= b.groupSize {
		b.restarts = append(b.restarts, uint32(b.record.Len()))
		b.groupCnt = 0
	} else {
		shared = utils.SharedPrefixLen(b.prevKey, key)
	}

	n := binary.PutUvarint(b.assistBuf[0:], uint64(shared))
	n += binary.PutUvarint(b.assistBuf[n:], uint64(len(key)-shared))
	n += binary.PutUvarint(b.assistBuf[n:], uint64(len(value)))

	b.record.Write(b.assistBuf[:n])
	b.record.Write(key[shared:])
	b.record.Write(value)

	b.prevKey = append(b.prevKey[:0], key...)
	b.groupCnt++
	b.entriesCnt++
}

// Content returns the encoded entries without the restart trailer. The slice
// is only valid until the next Append or Reset.
func (b *Block) Content() []byte {
	return b.record.Bytes()
}

// Size is the size of the encoded entries.
func (b *Block) Size() uint64 {
	return uint64(b.record.Len())
}

func (b *Block) EntriesCnt() int {
	return b.entriesCnt
}

func (b *Block) restartOffsets() []uint32 {
	return b.restarts
}

// Finish returns a copy of the block laid out for storage:
//
//	entries | restart offsets (fixed32 LE each) | restart count (fixed32 LE)
//
// The block itself is left untouched.
func (b *Block) Finish() []byte {
	out := make([]byte, 0, b.record.Len()+4*(len(b.restarts)+1))
	out = append(out, b.record.Bytes()...)
	for _, restart := range b.restarts {
		out = binary.LittleEndian.AppendUint32(out, restart)
	}
	return binary.LittleEndian.AppendUint32(out, uint32(len(b.restarts)))
}

func (b *Block) Reset() {
	b.record.Reset()
	b.prevKey = b.prevKey[:0]
	b.restarts = b.restarts[:0]
	b.groupCnt = 0
	b.entriesCnt = 0
}
