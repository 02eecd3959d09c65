package memtable

import (
	"bytes"

	"github.com/cockroachdb/errors"

	"emberdb/internal/storage/arena"
	"emberdb/internal/storage/keys"
	"emberdb/internal/storage/skiplist"
)

type SkipListMemTable struct {
	arena *arena.Arena
	list  *skiplist.SkipList[TableItem]
}

func NewSkipListMemTable() MemTable {
	a := arena.New()
	return &SkipListMemTable{
		arena: a,
		list:  skiplist.New[TableItem](a, CompareTableItem),
	}
}

func (m *SkipListMemTable) Add(seq uint64, typ keys.ItemType, key, value []byte) error {
	item := TableItem{
		Seq:   seq,
		Type:  typ,
		Key:   m.arena.Copy(key),
		Value: m.arena.Copy(value),
	}
	if err := m.list.Insert(item); err != nil {
		return errors.Wrapf(err, "memtable: add key %q seq %d", key, seq)
	}
	return nil
}

func (m *SkipListMemTable) Get(key []byte) ([]byte, bool) {
	it := m.list.NewIterator()
	it.Seek(lookupItem(key))
	if !it.Valid() {
		return nil, false
	}

	item := it.Key()
	if !bytes.Equal(item.Key, key) || item.Type == keys.TypeDeletion {
		return nil, false
	}
	return append([]byte{}, item.Value...), true
}

func (m *SkipListMemTable) NewIterator() Iterator {
	return &iterator{it: m.list.NewIterator()}
}

func (m *SkipListMemTable) ApproximateMemoryUsage() uint64 {
	return m.arena.AllocatedSize()
}

func (m *SkipListMemTable) EntriesCnt() int {
	return m.list.Len()
}

type iterator struct {
	it *skiplist.Iterator[TableItem]
}

func (i *iterator) Valid() bool     { return i.it.Valid() }
func (i *iterator) SeekToFirst()    { i.it.SeekToFirst() }
func (i *iterator) Seek(key []byte) { i.it.Seek(lookupItem(key)) }
func (i *iterator) Next()           { i.it.Next() }
func (i *iterator) Item() TableItem { return i.it.Key() }
