package memtable

import (
	"bytes"
	"math"

	"emberdb/internal/storage/keys"
)

// TableItem is one version of a key. Key and Value point into the memtable's
// arena and must not be modified.
type TableItem struct {
	Seq   uint64
	Type  keys.ItemType
	Key   []byte
	Value []byte
}

// CompareTableItem orders by key ascending, then by sequence descending.
func CompareTableItem(a, b TableItem) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Seq > b.Seq:
		return -1
	case a.Seq < b.Seq:
		return 1
	default:
		return 0
	}
}

// lookupItem sorts before every stored version of key.
func lookupItem(key []byte) TableItem {
	return TableItem{Seq: math.MaxUint64, Key: key}
}
