// Package skiplist provides an ordered index that allows one writer and any
// number of lock-free readers at the same time.
//
// Nodes are carved out of an arena and are never freed on their own. A reader
// that observes a link also observes the fully initialised node behind it:
// every forward pointer is published with an atomic store after the node is
// built, and read back with an atomic load.
package skiplist

import (
	"math/rand"
	"sync/atomic"
	"time"

	"emberdb/internal/storage/arena"
	"emberdb/pkg/errors"
)

const (
	MaxLevel = 10

	initialP = 0.5
	// past this height the growth probability halves on every extra level
	decayLevel = 4
)

// Comparator is a three-way comparison: negative if a < b, zero if equal,
// positive if a > b. It must be a strict total order.
type Comparator[V any] func(a, b V) int

type node[V any] struct {
	value V
	next  []atomic.Pointer[node[V]]
}

func (n *node[V]) loadNext(level int) *node[V] {
	return n.next[level].Load()
}

func (n *node[V]) storeNext(level int, x *node[V]) {
	n.next[level].Store(x)
}

type options struct {
	source   rand.Source
	maxLevel int
}

type Option func(*options)

// WithRandSource makes level selection deterministic.
func WithRandSource(source rand.Source) Option {
	return func(o *options) {
		o.source = source
	}
}

// WithMaxLevel lowers the tallest tower a node may get, clamped to [1, MaxLevel].
func WithMaxLevel(level int) Option {
	return func(o *options) {
		o.maxLevel = level
	}
}

// SkipList is safe for one goroutine calling Insert concurrently with any
// number calling Contains or iterating. Remove must be serialized against all
// other operations.
type SkipList[V any] struct {
	head     *node[V]
	height   atomic.Int32 // levels in use, 1 <= height <= maxLevel
	maxLevel int
	count    atomic.Int64
	cmp      Comparator[V]
	rnd      *rand.Rand

	nodes  *arena.Slab[node[V]]
	towers *arena.Slab[atomic.Pointer[node[V]]]
}

func New[V any](a *arena.Arena, cmp Comparator[V], opts ...Option) *SkipList[V] {
	o := options{maxLevel: MaxLevel}
	for _, opt := range opts {
		opt(&o)
	}
	if o.source == nil {
		o.source = rand.NewSource(time.Now().UnixNano())
	}
	o.maxLevel = min(max(o.maxLevel, 1), MaxLevel)

	s := &SkipList[V]{
		maxLevel: o.maxLevel,
		cmp:      cmp,
		rnd:      rand.New(o.source),
		nodes:    arena.NewSlab[node[V]](a),
		towers:   arena.NewSlab[atomic.Pointer[node[V]]](a),
	}
	var zero V
	s.head = s.newNode(zero, s.maxLevel)
	s.height.Store(1)
	return s
}

// Insert adds value to the list. An equal value already present is rejected
// with ErrDuplicateKey.
func (s *SkipList[V]) Insert(value V) error {
	var prev [MaxLevel]*node[V]
	x := s.findGreaterOrEqual(value, prev[:])
	if x != nil && s.cmp(x.value, value) == 0 {
		return errors.ErrDuplicateKey
	}

	height := s.randomLevel()
	if cur := s.Height(); height > cur {
		for i := cur; i < height; i++ {
			prev[i] = s.head
		}
		// a reader seeing the new height before the links below finds nil at
		// the upper head levels and just moves down
		s.height.Store(int32(height))
	}

	x = s.newNode(value, height)
	for i := 0; i < height; i++ {
		x.storeNext(i, prev[i].loadNext(i))
		prev[i].storeNext(i, x)
	}
	s.count.Add(1)
	return nil
}

// Contains reports whether a value equal to value is present.
func (s *SkipList[V]) Contains(value V) bool {
	x := s.findGreaterOrEqual(value, nil)
	return x != nil && s.cmp(x.value, value) == 0
}

// Remove unlinks the node equal to value and reports whether one was found.
// The node's memory stays with the arena.
func (s *SkipList[V]) Remove(value V) bool {
	var prev [MaxLevel]*node[V]
	x := s.findGreaterOrEqual(value, prev[:])
	if x == nil || s.cmp(x.value, value) != 0 {
		return false
	}

	height := len(x.next)
	for i := 0; i < height; i++ {
		if prev[i].loadNext(i) == x {
			prev[i].storeNext(i, x.loadNext(i))
		}
	}
	s.count.Add(-1)

	if height == s.Height() {
		h := 0
		for h < s.maxLevel && s.head.loadNext(h) != nil {
			h++
		}
		s.height.Store(int32(max(h, 1)))
	}
	return true
}

// Len returns the number of linked values.
func (s *SkipList[V]) Len() int {
	return int(s.count.Load())
}

// Height returns the number of levels currently in use.
func (s *SkipList[V]) Height() int {
	return int(s.height.Load())
}

// findGreaterOrEqual returns the first node not less than target, or nil. When
// prev is non-nil it receives, per level, the last node visited before
// descending.
func (s *SkipList[V]) findGreaterOrEqual(target V, prev []*node[V]) *node[V] {
	x := s.head
	level := s.Height() - 1
	for {
		next := x.loadNext(level)
		if next != nil && s.cmp(next.value, target) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

func (s *SkipList[V]) newNode(value V, height int) *node[V] {
	n := s.nodes.New()
	n.value = value
	n.next = s.towers.NewSlice(height)
	return n
}

func (s *SkipList[V]) randomLevel() int {
	level, p := 1, initialP
	for level < s.maxLevel && s.rnd.Float64() < p {
		level++
		if level >= decayLevel {
			p /= 2
		}
	}
	return level
}
