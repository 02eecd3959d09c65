package file

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"

	perrors "emberdb/pkg/errors"
)

const writeBufferSize = 64 << 10

type osFile interface {
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// PosixAppendOnlyFile buffers appends in memory and writes them at the end of
// the file. A failed write cuts the file back to its last good length and
// keeps the pending bytes, so the failed call can be retried.
type PosixAppendOnlyFile struct {
	path    string
	dest    osFile
	buf     []byte // appended, not yet written
	written int64  // length of the file on disk
}

// NewPosixAppendOnlyFile creates path, and its directory if needed, truncating
// any previous content.
func NewPosixAppendOnlyFile(path string) (*PosixAppendOnlyFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create dir of %s", path)
	}

	dest, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	return &PosixAppendOnlyFile{
		path: path,
		dest: dest,
		buf:  make([]byte, 0, writeBufferSize),
	}, nil
}

func (f *PosixAppendOnlyFile) IsOpen() bool {
	return f.dest != nil
}

func (f *PosixAppendOnlyFile) Append(data []byte) error {
	if !f.IsOpen() {
		return perrors.ErrFileClosed
	}
	if len(f.buf)+len(data) <= writeBufferSize {
		f.buf = append(f.buf, data...)
		return nil
	}
	if err := f.writeOut(f.buf, data); err != nil {
		return errors.Wrapf(err, "append to %s", f.path)
	}
	f.buf = f.buf[:0]
	return nil
}

func (f *PosixAppendOnlyFile) Flush() error {
	if !f.IsOpen() {
		return perrors.ErrFileClosed
	}
	if err := f.writeOut(f.buf); err != nil {
		return errors.Wrapf(err, "flush %s", f.path)
	}
	f.buf = f.buf[:0]
	return nil
}

func (f *PosixAppendOnlyFile) Sync() error {
	if err := f.Flush(); err != nil {
		return err
	}
	return errors.Wrapf(f.dest.Sync(), "sync %s", f.path)
}

// Close flushes buffered data and closes the file. Closing twice is a no-op.
func (f *PosixAppendOnlyFile) Close() error {
	if !f.IsOpen() {
		return nil
	}
	flushErr := f.Flush()
	closeErr := errors.Wrapf(f.dest.Close(), "close %s", f.path)
	f.dest = nil
	return multierr.Append(flushErr, closeErr)
}

// writeOut writes parts in order at the end of the file. On failure the file
// is truncated back to its previous length.
func (f *PosixAppendOnlyFile) writeOut(parts ...[]byte) error {
	off := f.written
	for _, p := range parts {
		n, err := f.dest.WriteAt(p, off)
		if err != nil {
			return multierr.Append(err, f.dest.Truncate(f.written))
		}
		off += int64(n)
	}
	f.written = off
	return nil
}

func (f *PosixAppendOnlyFile) Name() string {
	return filepath.Base(f.path)
}

func (f *PosixAppendOnlyFile) Dir() string {
	return filepath.Dir(f.path)
}

type PosixRandomAccessFile struct {
	path string
	src  *os.File
	size int64
}

func OpenPosixRandomAccessFile(path string) (*PosixRandomAccessFile, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	info, err := src.Stat()
	if err != nil {
		_ = src.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &PosixRandomAccessFile{path: path, src: src, size: info.Size()}, nil
}

func (f *PosixRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	if f.src == nil {
		return 0, perrors.ErrFileClosed
	}
	return f.src.ReadAt(p, off)
}

func (f *PosixRandomAccessFile) Size() int64 {
	return f.size
}

func (f *PosixRandomAccessFile) Close() error {
	if f.src == nil {
		return nil
	}
	err := f.src.Close()
	f.src = nil
	return errors.Wrapf(err, "close %s", f.path)
}
