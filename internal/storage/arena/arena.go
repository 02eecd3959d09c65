// Package arena implements the bump allocator that owns every byte a memtable
// stores. Allocations are never released individually; the arena, its blocks
// and everything handed out from it go away together when the owning memtable
// becomes unreachable.
package arena

import (
	"sync/atomic"
	"unsafe"
)

const (
	// PoolBlockBytes is the size of a regular arena block.
	PoolBlockBytes = 4096
	// BigBytesThreshold is the request size above which a dedicated block is used
	// so that the current block's remainder is not wasted.
	BigBytesThreshold = PoolBlockBytes / 4

	pointerSize = int(unsafe.Sizeof(uintptr(0)))
)

// Align is the alignment guaranteed by AllocateAligned: the pointer width,
// capped at 8 bytes.
const Align = min(pointerSize, 8)

// Arena is not safe for concurrent allocation. AllocatedSize may be called
// from any goroutine.
type Arena struct {
	blocks    [][]byte      // every block ever allocated, kept alive until the arena dies
	remaining []byte        // unused tail of the current pool block
	allocated atomic.Uint64 // bytes physically allocated, including bookkeeping
}

func New() *Arena {
	return &Arena{}
}

// Allocate returns n contiguous bytes. The slice's capacity is exactly n, so
// appending to it never overwrites a neighbouring allocation.
func (a *Arena) Allocate(n int) []byte {
	if n <= 0 {
		panic("arena: allocation size must be positive")
	}

	if n <= len(a.remaining) {
		result := a.remaining[:n:n]
		a.remaining = a.remaining[n:]
		return result
	}
	return a.allocateFallback(n)
}

// AllocateAligned is like Allocate, but the first byte of the returned slice
// sits at an address that is a multiple of Align.
func (a *Arena) AllocateAligned(n int) []byte {
	if n <= 0 {
		panic("arena: allocation size must be positive")
	}

	var slop int
	if len(a.remaining) > 0 {
		mod := int(uintptr(unsafe.Pointer(&a.remaining[0])) & uintptr(Align-1))
		slop = (Align - mod) & (Align - 1)
	}
	if need := n + slop; need <= len(a.remaining) {
		result := a.remaining[slop:need:need]
		a.remaining = a.remaining[need:]
		return result
	}
	// fresh blocks come from the Go heap, which aligns them to at least 8 bytes
	return a.allocateFallback(n)
}

// Copy stores src in the arena. An empty src yields nil.
func (a *Arena) Copy(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := a.AllocateAligned(len(src))
	copy(dst, src)
	return dst
}

// AllocatedSize reports the bytes physically allocated so far. It only grows.
func (a *Arena) AllocatedSize() uint64 {
	return a.allocated.Load()
}

func (a *Arena) allocateFallback(n int) []byte {
	if n > BigBytesThreshold {
		// dedicated block; the current remainder stays usable
		return a.newBlock(n)[:n:n]
	}

	block := a.newBlock(PoolBlockBytes)
	a.remaining = block[n:]
	return block[:n:n]
}

func (a *Arena) newBlock(n int) []byte {
	block := make([]byte, n)
	a.blocks = append(a.blocks, block)
	a.charge(n + pointerSize)
	return block
}

func (a *Arena) charge(n int) {
	a.allocated.Add(uint64(n))
}
