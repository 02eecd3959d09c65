package memtable

import (
	"emberdb/internal/storage/keys"
)

type MemTableConstructor func() MemTable

// MemTable buffers recent writes in sorted order. Add must be called from a
// single goroutine; Get and iterators may run concurrently with it.
type MemTable interface {
	// Add records a version of key. typ TypeDeletion records a tombstone.
	Add(seq uint64, typ keys.ItemType, key, value []byte) error
	// Get returns a copy of the newest value of key. A key whose newest
	// version is a tombstone is reported as not found.
	Get(key []byte) ([]byte, bool)
	NewIterator() Iterator
	ApproximateMemoryUsage() uint64 // bytes held by the arena
	EntriesCnt() int                // num of versions, tombstones included
}

// Iterator yields every stored version in TableItem order.
type Iterator interface {
	Valid() bool
	SeekToFirst()
	// Seek positions at the newest version of key, or the first item after it.
	Seek(key []byte)
	Next()
	Item() TableItem
}
