package skiplist

// Iterator walks a SkipList forward. It takes no locks and allocates nothing
// while moving, so it is safe to use while the single writer inserts.
type Iterator[V any] struct {
	list *SkipList[V]
	node *node[V]
}

func (s *SkipList[V]) NewIterator() *Iterator[V] {
	return &Iterator[V]{list: s}
}

func (it *Iterator[V]) Valid() bool {
	return it.node != nil
}

// Key returns the value at the current position. REQUIRES: Valid().
func (it *Iterator[V]) Key() V {
	return it.node.value
}

// Next advances to the following value. REQUIRES: Valid().
func (it *Iterator[V]) Next() {
	it.node = it.node.loadNext(0)
}

// Seek positions at the first value not less than target.
func (it *Iterator[V]) Seek(target V) {
	it.node = it.list.findGreaterOrEqual(target, nil)
}

func (it *Iterator[V]) SeekToFirst() {
	it.node = it.list.head.loadNext(0)
}
