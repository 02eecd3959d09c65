package sstable

import (
	"bytes"

	"github.com/cockroachdb/errors"

	"emberdb/internal/config"
	"emberdb/internal/storage/file"
	"emberdb/internal/storage/filter"
	perrors "emberdb/pkg/errors"
	"emberdb/pkg/logger"
)

type BuilderOption func(*Builder)

// WithFilterKey selects the bytes of each key fed to the bloom filter, e.g.
// the user key part of an internal key.
func WithFilterKey(fn func(key []byte) []byte) BuilderOption {
	return func(b *Builder) {
		b.filterKey = fn
	}
}

// Builder streams sorted entries into a table file. Keys must be added in
// the order the table's readers compare them; the builder does not check.
//
// A failed write to dest leaves the builder as it was before the call, so
// the caller may retry or abandon the table. A retried Finish resumes after
// the last part it wrote; once Finish has written the filter block no more
// entries can be added.
type Builder struct {
	conf config.TableConfig
	dest file.AppendOnlyFile

	dataBlock   *Block
	indexBlock  *Block
	filterBlock *Block
	filter      filter.Filter
	filterKey   func([]byte) []byte

	offset     uint64 // bytes successfully appended to dest
	lastKey    []byte
	smallest   []byte
	entries    int
	dataBlocks int
	finished   bool
	handleBuf  []byte

	// parts of the table tail already written by an earlier Finish
	filterHandle  *BlockHandle
	indexHandle   *BlockHandle
	footerWritten bool
}

func NewBuilder(conf config.TableConfig, dest file.AppendOnlyFile, opts ...BuilderOption) *Builder {
	b := &Builder{
		conf:        conf,
		dest:        dest,
		dataBlock:   NewBlock(conf.BlockGroupSize),
		indexBlock:  NewBlock(indexGroupSize),
		filterBlock: NewBlock(indexGroupSize),
		filter:      filter.NewBloomFilter(conf.FilterBitsPerKey),
		filterKey:   func(key []byte) []byte { return key },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends an entry. The pending data block is cut first if it already
// reached the configured threshold.
func (b *Builder) Add(key, value []byte) error {
	if b.finished || b.filterHandle != nil {
		return perrors.ErrBuilderFinished
	}

	if b.dataBlock.Size() >= b.conf.BlockSizeThreshold {
		if err := b.flushDataBlock(); err != nil {
			return err
		}
	}

	b.dataBlock.Append(key, value)
	b.filter.Add(b.filterKey(key))
	if b.entries == 0 {
		b.smallest = bytes.Clone(key)
	}
	b.lastKey = append(b.lastKey[:0], key...)
	b.entries++
	return nil
}

// Finish writes the last data block, the filter and index blocks and the
// footer, then flushes dest. dest is not closed.
func (b *Builder) Finish() (*Metadata, error) {
	if b.finished {
		return nil, perrors.ErrBuilderFinished
	}

	if b.filterHandle == nil {
		if err := b.flushDataBlock(); err != nil {
			return nil, err
		}
		handle, err := b.writeBlock(b.filterBlock.Finish())
		if err != nil {
			return nil, err
		}
		b.filterHandle = &handle
	}
	if b.indexHandle == nil {
		handle, err := b.writeBlock(b.indexBlock.Finish())
		if err != nil {
			return nil, err
		}
		b.indexHandle = &handle
	}

	if !b.footerWritten {
		ft := footer{filter: *b.filterHandle, index: *b.indexHandle, entries: uint64(b.entries)}
		if err := b.dest.Append(ft.encode()); err != nil {
			return nil, errors.Wrapf(err, "write footer of %s", b.dest.Name())
		}
		b.offset += footerSize
		b.footerWritten = true
	}

	if err := b.dest.Flush(); err != nil {
		return nil, errors.Wrapf(err, "flush %s", b.dest.Name())
	}
	if b.conf.SyncOnFinish {
		if err := b.dest.Sync(); err != nil {
			return nil, errors.Wrapf(err, "sync %s", b.dest.Name())
		}
	}
	b.finished = true

	meta := &Metadata{
		Smallest:   b.smallest,
		Largest:    bytes.Clone(b.lastKey),
		Entries:    b.entries,
		DataBlocks: b.dataBlocks,
		Size:       b.offset,
	}
	logger.Debug("sstable finished",
		"file", b.dest.Name(),
		"entries", meta.Entries,
		"data_blocks", meta.DataBlocks,
		"size", meta.Size,
	)
	return meta, nil
}

// EntriesCnt returns the number of entries added so far.
func (b *Builder) EntriesCnt() int {
	return b.entries
}

// FileSize returns the bytes written to dest so far, pending data excluded.
func (b *Builder) FileSize() uint64 {
	return b.offset
}

// flushDataBlock writes the pending data block and records it in the index
// and filter blocks. Nothing changes if the write fails.
func (b *Builder) flushDataBlock() error {
	if b.dataBlock.EntriesCnt() == 0 {
		return nil
	}

	handle, err := b.writeBlock(b.dataBlock.Finish())
	if err != nil {
		return err
	}

	b.handleBuf = handle.encode(b.handleBuf[:0])
	b.indexBlock.Append(b.lastKey, b.handleBuf)
	b.filterBlock.Append(filterKeyForOffset(handle.Offset), b.filter.Hash())

	b.filter.Reset()
	b.dataBlock.Reset()
	b.dataBlocks++
	return nil
}

// writeBlock appends block and its checksum in a single write.
func (b *Builder) writeBlock(block []byte) (BlockHandle, error) {
	if err := b.dest.Append(appendChecksum(block)); err != nil {
		return BlockHandle{}, errors.Wrapf(err, "write block at offset %d of %s", b.offset, b.dest.Name())
	}
	handle := BlockHandle{Offset: b.offset, Size: uint64(len(block))}
	b.offset += uint64(len(block)) + blockTrailer
	return handle, nil
}
