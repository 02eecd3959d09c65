package errors

import "github.com/cockroachdb/errors"

var (
	// Skiplist / memtable errors
	ErrDuplicateKey = errors.New("duplicate key")
	ErrSeqOverflow  = errors.New("sequence number overflow")

	// Table errors
	ErrBuilderFinished = errors.New("sstable builder already finished")
	ErrCorruption      = errors.New("sstable corruption")

	// File errors
	ErrFileClosed = errors.New("file already closed")

	// DB errors
	ErrKeyNotFound = errors.New("key not found")
	ErrEmptyKey    = errors.New("key is empty")
	ErrDBClosed    = errors.New("db is closed")
)
