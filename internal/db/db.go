// Package db ties the write path together: writes land in a memtable, a full
// memtable is written out as a table file, and reads consult the memtable
// first and then the tables from newest to oldest.
package db

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"emberdb/internal/config"
	"emberdb/internal/storage/file"
	"emberdb/internal/storage/keys"
	"emberdb/internal/storage/memtable"
	"emberdb/internal/storage/sstable"
	perrors "emberdb/pkg/errors"
	"emberdb/pkg/logger"
)

type DB struct {
	conf *config.Config
	log  *zap.SugaredLogger

	writeLock sync.Mutex   // single writer: Put, Delete, Flush, Close
	dataLock  sync.RWMutex // guards swapping memTable and tables
	memTable  memtable.MemTable
	tables    []*table // oldest first

	seq      atomic.Uint64 // last sequence handed out
	nextFile uint64
	closed   atomic.Bool
}

func Open(conf *config.Config) (*DB, error) {
	if err := os.MkdirAll(conf.Dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", conf.Dir)
	}

	db := &DB{
		conf:     conf,
		log:      logger.Named("db"),
		memTable: conf.MemTableConstructor(),
		nextFile: 1,
	}

	tables, lastSeq, err := loadTables(conf)
	if err != nil {
		return nil, err
	}
	db.tables = tables
	db.seq.Store(lastSeq)
	if len(tables) > 0 {
		db.nextFile = tables[len(tables)-1].fileNum + 1
	}

	db.log.Infow("db opened",
		"dir", conf.Dir,
		"tables", len(tables),
		"last_seq", lastSeq,
	)
	return db, nil
}

// Put stores value under key and returns the sequence assigned to the write.
func (db *DB) Put(key, value []byte) (uint64, error) {
	return db.write(keys.TypeValue, key, value)
}

// Delete records a tombstone for key and returns its sequence.
func (db *DB) Delete(key []byte) (uint64, error) {
	return db.write(keys.TypeDeletion, key, nil)
}

func (db *DB) write(typ keys.ItemType, key, value []byte) (uint64, error) {
	if len(key) == 0 {
		return 0, perrors.ErrEmptyKey
	}

	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	if db.closed.Load() {
		return 0, perrors.ErrDBClosed
	}

	seq := db.seq.Load() + 1
	if seq > keys.MaxSequence {
		return 0, perrors.ErrSeqOverflow
	}
	if err := db.memTable.Add(seq, typ, key, value); err != nil {
		return 0, err
	}
	db.seq.Store(seq)

	if db.memTable.ApproximateMemoryUsage() >= db.conf.MemTableSize {
		// the write itself is already visible; a failed flush is retried on
		// the next write that finds the memtable full
		if _, err := db.flushLocked(); err != nil {
			db.log.Errorw("memtable flush failed", "error", err)
		}
	}
	return seq, nil
}

// Get returns the newest value of key. A deleted key is reported as not
// found. Get never waits for the writer.
func (db *DB) Get(key []byte) ([]byte, bool, error) {
	if db.closed.Load() {
		return nil, false, perrors.ErrDBClosed
	}

	db.dataLock.RLock()
	mt, tables := db.memTable, db.tables
	db.dataLock.RUnlock()

	it := mt.NewIterator()
	it.Seek(key)
	if it.Valid() && bytes.Equal(it.Item().Key, key) {
		item := it.Item()
		if item.Type == keys.TypeDeletion {
			return nil, false, nil
		}
		return bytes.Clone(item.Value), true, nil
	}

	for i := len(tables) - 1; i >= 0; i-- {
		value, typ, found, err := tables[i].get(key)
		if err != nil {
			return nil, false, errors.Wrapf(err, "read table %s", tables[i].name)
		}
		if !found {
			continue
		}
		if typ == keys.TypeDeletion {
			return nil, false, nil
		}
		return value, true, nil
	}
	return nil, false, nil
}

// Flush writes the memtable out as a new table. It returns nil metadata when
// the memtable is empty.
func (db *DB) Flush() (*sstable.Metadata, error) {
	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	if db.closed.Load() {
		return nil, perrors.ErrDBClosed
	}
	return db.flushLocked()
}

func (db *DB) flushLocked() (*sstable.Metadata, error) {
	mt := db.memTable
	if mt.EntriesCnt() == 0 {
		return nil, nil
	}

	fileNum := db.nextFile
	name := tableFileName(fileNum)
	path := filepath.Join(db.conf.Dir, name)

	meta, err := writeTable(db.conf.Table, path, mt)
	if err != nil {
		return nil, multierr.Append(err, removeIfExists(path))
	}

	t, err := openTable(db.conf.Table, path, fileNum)
	if err != nil {
		return nil, multierr.Append(err, removeIfExists(path))
	}

	db.dataLock.Lock()
	db.tables = append(db.tables, t)
	db.memTable = db.conf.MemTableConstructor()
	db.dataLock.Unlock()
	db.nextFile++

	db.log.Infow("memtable flushed",
		"file", name,
		"entries", meta.Entries,
		"data_blocks", meta.DataBlocks,
		"size", meta.Size,
	)
	return meta, nil
}

func writeTable(conf config.TableConfig, path string, mt memtable.MemTable) (*sstable.Metadata, error) {
	dest, err := file.NewPosixAppendOnlyFile(path)
	if err != nil {
		return nil, err
	}

	builder := sstable.NewBuilder(conf, dest, sstable.WithFilterKey(keys.UserKey))
	it := mt.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		item := it.Item()
		if err := builder.Add(keys.MakeInternalKey(item.Key, item.Seq, item.Type), item.Value); err != nil {
			return nil, multierr.Append(err, dest.Close())
		}
	}

	meta, err := builder.Finish()
	if err != nil {
		err = errors.Wrapf(err, "finish table with %d entries, %d bytes written", builder.EntriesCnt(), builder.FileSize())
		return nil, multierr.Append(err, dest.Close())
	}
	if err := dest.Close(); err != nil {
		return nil, err
	}
	return meta, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

// Close flushes the memtable and releases every table. Further calls return
// ErrDBClosed.
func (db *DB) Close() error {
	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	if db.closed.Load() {
		return perrors.ErrDBClosed
	}

	_, err := db.flushLocked()
	db.closed.Store(true)

	db.dataLock.Lock()
	for _, t := range db.tables {
		err = multierr.Append(err, t.close())
	}
	db.tables = nil
	db.dataLock.Unlock()

	db.log.Infow("db closed", "dir", db.conf.Dir, "last_seq", db.seq.Load())
	return err
}

type Stats struct {
	LastSequence    uint64       `json:"last_sequence"`
	MemTableEntries int          `json:"memtable_entries"`
	MemTableBytes   uint64       `json:"memtable_bytes"`
	Tables          []TableStats `json:"tables"`
}

type TableStats struct {
	Name       string `json:"name"`
	Entries    int    `json:"entries"`
	DataBlocks int    `json:"data_blocks"`
	Size       uint64 `json:"size"`
}

func (db *DB) Stats() Stats {
	db.dataLock.RLock()
	mt, tables := db.memTable, db.tables
	db.dataLock.RUnlock()

	stats := Stats{
		LastSequence:    db.seq.Load(),
		MemTableEntries: mt.EntriesCnt(),
		MemTableBytes:   mt.ApproximateMemoryUsage(),
		Tables:          make([]TableStats, 0, len(tables)),
	}
	for _, t := range tables {
		meta := t.reader.Metadata()
		stats.Tables = append(stats.Tables, TableStats{
			Name:       t.name,
			Entries:    meta.Entries,
			DataBlocks: meta.DataBlocks,
			Size:       meta.Size,
		})
	}
	return stats
}
