package sstable

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"

	perrors "emberdb/pkg/errors"
)

// Table layout:
//
//	data block 0 | crc
//	...
//	data block n | crc
//	filter block | crc   uvarint(data block offset) -> bloom bitmap
//	index block  | crc   last key of data block -> uvarint offset, uvarint size
//	footer               filterOffset, filterSize, indexOffset, indexSize,
//	                     entries, magic; fixed64 LE each
//
// Block sizes in handles and in the footer exclude the trailing crc.
const (
	footerSize     = 6 * 8
	blockTrailer   = 4
	tableMagic     = 0x454d424552444221 // "EMBERDB!"
	indexGroupSize = 1
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Comparator orders keys inside a table.
type Comparator func(a, b []byte) int

// BlockHandle locates a block inside a table file.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

func (h BlockHandle) encode(buf []byte) []byte {
	buf = binary.AppendUvarint(buf, h.Offset)
	return binary.AppendUvarint(buf, h.Size)
}

func decodeBlockHandle(buf []byte) (BlockHandle, error) {
	offset, n := binary.Uvarint(buf)
	if n <= 0 {
		return BlockHandle{}, errors.Wrap(perrors.ErrCorruption, "bad block handle offset")
	}
	size, m := binary.Uvarint(buf[n:])
	if m <= 0 {
		return BlockHandle{}, errors.Wrap(perrors.ErrCorruption, "bad block handle size")
	}
	return BlockHandle{Offset: offset, Size: size}, nil
}

type footer struct {
	filter  BlockHandle
	index   BlockHandle
	entries uint64
}

func (f footer) encode() []byte {
	buf := make([]byte, 0, footerSize)
	buf = binary.LittleEndian.AppendUint64(buf, f.filter.Offset)
	buf = binary.LittleEndian.AppendUint64(buf, f.filter.Size)
	buf = binary.LittleEndian.AppendUint64(buf, f.index.Offset)
	buf = binary.LittleEndian.AppendUint64(buf, f.index.Size)
	buf = binary.LittleEndian.AppendUint64(buf, f.entries)
	return binary.LittleEndian.AppendUint64(buf, tableMagic)
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerSize {
		return footer{}, errors.Wrapf(perrors.ErrCorruption, "footer size %d", len(buf))
	}
	if magic := binary.LittleEndian.Uint64(buf[40:]); magic != tableMagic {
		return footer{}, errors.Wrapf(perrors.ErrCorruption, "bad table magic %#x", magic)
	}
	return footer{
		filter: BlockHandle{
			Offset: binary.LittleEndian.Uint64(buf[0:]),
			Size:   binary.LittleEndian.Uint64(buf[8:]),
		},
		index: BlockHandle{
			Offset: binary.LittleEndian.Uint64(buf[16:]),
			Size:   binary.LittleEndian.Uint64(buf[24:]),
		},
		entries: binary.LittleEndian.Uint64(buf[32:]),
	}, nil
}

// appendChecksum returns block followed by its crc32c.
func appendChecksum(block []byte) []byte {
	out := make([]byte, 0, len(block)+blockTrailer)
	out = append(out, block...)
	return binary.LittleEndian.AppendUint32(out, crc32.Checksum(block, crcTable))
}

func verifyChecksum(buf []byte) ([]byte, error) {
	if len(buf) < blockTrailer {
		return nil, errors.Wrap(perrors.ErrCorruption, "block shorter than checksum")
	}
	n := len(buf) - blockTrailer
	want := binary.LittleEndian.Uint32(buf[n:])
	if got := crc32.Checksum(buf[:n], crcTable); got != want {
		return nil, errors.Wrapf(perrors.ErrCorruption, "block checksum mismatch: got %#x want %#x", got, want)
	}
	return buf[:n], nil
}

func filterKeyForOffset(offset uint64) []byte {
	return binary.AppendUvarint(nil, offset)
}

// Metadata describes a finished table.
type Metadata struct {
	Smallest   []byte `json:"smallest"`
	Largest    []byte `json:"largest"`
	Entries    int    `json:"entries"`
	DataBlocks int    `json:"data_blocks"`
	Size       uint64 `json:"size"`
}
