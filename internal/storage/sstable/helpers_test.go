package sstable

import (
	"bytes"

	"github.com/cockroachdb/errors"

	"emberdb/internal/config"
)

var errInjected = errors.New("injected write failure")

// memFile is an in-memory file sink that can be told to fail appends. The
// first passAppends appends succeed before failAppends take effect.
type memFile struct {
	buf         bytes.Buffer
	passAppends int
	failAppends int
	appends     int
	flushes     int
	syncs       int
	closed      bool
}

func (m *memFile) IsOpen() bool { return !m.closed }

func (m *memFile) Append(data []byte) error {
	if m.failAppends > 0 {
		if m.passAppends == 0 {
			m.failAppends--
			return errInjected
		}
		m.passAppends--
	}
	m.appends++
	m.buf.Write(data)
	return nil
}

func (m *memFile) Flush() error { m.flushes++; return nil }
func (m *memFile) Sync() error  { m.syncs++; return nil }
func (m *memFile) Close() error { m.closed = true; return nil }
func (m *memFile) Name() string { return "000001.sst" }
func (m *memFile) Dir() string  { return "mem" }

type memReader struct {
	*bytes.Reader
}

func (memReader) Close() error { return nil }

func newMemReader(data []byte) memReader {
	return memReader{Reader: bytes.NewReader(data)}
}

func testTableConfig(threshold uint64, groupSize int) config.TableConfig {
	conf := config.DefaultTableConfig()
	conf.BlockSizeThreshold = threshold
	conf.BlockGroupSize = groupSize
	return conf
}
