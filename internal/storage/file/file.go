// Package file holds the file contracts the table builder and reader are
// written against, and their implementations over the local filesystem.
package file

import "io"

// AppendOnlyFile is the sink a table is written to. Append may buffer; data is
// durable only after Sync.
type AppendOnlyFile interface {
	IsOpen() bool
	Append(data []byte) error
	Flush() error
	Sync() error
	Close() error
	Name() string
	Dir() string
}

// RandomAccessFile serves positioned reads of a finished table.
type RandomAccessFile interface {
	io.ReaderAt
	Size() int64
	Close() error
}
