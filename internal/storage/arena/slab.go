package arena

import "unsafe"

// Slab bump-allocates values of a single type in chunks of roughly
// PoolBlockBytes. Values that hold Go pointers (skiplist nodes, their forward
// links) cannot live in the byte blocks of an Arena without hiding those
// pointers from the garbage collector, so they are carved from typed chunks
// instead. Chunk sizes are charged to the parent arena and chunks share its
// lifetime.
type Slab[T any] struct {
	arena     *Arena
	chunks    [][]T
	remaining []T
	chunkLen  int
	elemSize  int
}

func NewSlab[T any](a *Arena) *Slab[T] {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	return &Slab[T]{
		arena:    a,
		chunkLen: max(1, PoolBlockBytes/size),
		elemSize: size,
	}
}

// New returns a pointer to a zeroed T.
func (s *Slab[T]) New() *T {
	return &s.NewSlice(1)[0]
}

// NewSlice returns n contiguous zeroed values with cap == n.
func (s *Slab[T]) NewSlice(n int) []T {
	if n <= 0 {
		panic("arena: slab allocation size must be positive")
	}

	if n <= len(s.remaining) {
		result := s.remaining[:n:n]
		s.remaining = s.remaining[n:]
		return result
	}

	if n > s.chunkLen/4 {
		return s.newChunk(n)[:n:n]
	}

	chunk := s.newChunk(s.chunkLen)
	s.remaining = chunk[n:]
	return chunk[:n:n]
}

func (s *Slab[T]) newChunk(n int) []T {
	chunk := make([]T, n)
	s.chunks = append(s.chunks, chunk)
	s.arena.charge(n*s.elemSize + pointerSize)
	return chunk
}
