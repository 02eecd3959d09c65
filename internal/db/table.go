package db

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"

	"emberdb/internal/config"
	"emberdb/internal/storage/file"
	"emberdb/internal/storage/keys"
	"emberdb/internal/storage/sstable"
)

const tableFileSuffix = ".sst"

// table is one flushed memtable on disk.
type table struct {
	fileNum uint64
	name    string
	reader  *sstable.Reader
}

func tableFileName(fileNum uint64) string {
	return fmt.Sprintf("%06d%s", fileNum, tableFileSuffix)
}

func parseTableFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, tableFileSuffix) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(name, tableFileSuffix), 10, 64)
	if err != nil || n == 0 || tableFileName(n) != name {
		return 0, false
	}
	return n, true
}

func openTable(conf config.TableConfig, path string, fileNum uint64) (*table, error) {
	src, err := file.OpenPosixRandomAccessFile(path)
	if err != nil {
		return nil, err
	}
	reader, err := sstable.NewReader(src, conf, sstable.WithComparator(keys.CompareInternal))
	if err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "open table %s", path), src.Close())
	}
	return &table{
		fileNum: fileNum,
		name:    filepath.Base(path),
		reader:  reader,
	}, nil
}

// get returns the newest version of userKey stored in the table.
func (t *table) get(userKey []byte) ([]byte, keys.ItemType, bool, error) {
	ikey, value, found, err := t.reader.Find(keys.SeekKey(userKey), userKey)
	if err != nil || !found {
		return nil, 0, false, err
	}
	user, _, typ, err := keys.ParseInternalKey(ikey)
	if err != nil {
		return nil, 0, false, err
	}
	if !bytes.Equal(user, userKey) {
		return nil, 0, false, nil
	}
	return value, typ, true, nil
}

// maxSequence scans the table for its largest sequence.
func (t *table) maxSequence() (uint64, error) {
	var maxSeq uint64
	it := t.reader.NewIterator()
	for it.First(); it.Valid(); it.Next() {
		_, seq, _, err := keys.ParseInternalKey(it.Key())
		if err != nil {
			return 0, err
		}
		maxSeq = max(maxSeq, seq)
	}
	return maxSeq, it.Err()
}

func (t *table) close() error {
	return t.reader.Close()
}

// loadTables opens every table file in conf.Dir, oldest first, and returns the
// largest sequence found in them.
func loadTables(conf *config.Config) ([]*table, uint64, error) {
	entries, err := os.ReadDir(conf.Dir)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "read data dir %s", conf.Dir)
	}

	var fileNums []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if n, ok := parseTableFileName(entry.Name()); ok {
			fileNums = append(fileNums, n)
		}
	}
	sort.Slice(fileNums, func(i, j int) bool { return fileNums[i] < fileNums[j] })

	var (
		tables  []*table
		lastSeq uint64
	)
	closeAll := func() error {
		var err error
		for _, t := range tables {
			err = multierr.Append(err, t.close())
		}
		return err
	}

	for _, n := range fileNums {
		t, err := openTable(conf.Table, filepath.Join(conf.Dir, tableFileName(n)), n)
		if err != nil {
			return nil, 0, multierr.Append(err, closeAll())
		}
		tables = append(tables, t)

		seq, err := t.maxSequence()
		if err != nil {
			return nil, 0, multierr.Append(errors.Wrapf(err, "scan table %s", t.name), closeAll())
		}
		lastSeq = max(lastSeq, seq)
	}
	return tables, lastSeq, nil
}
