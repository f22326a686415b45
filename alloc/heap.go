// Package alloc implements the byte-granular heap the scheduler accounts
// task stacks against: a single best-fit free list over a fixed-size
// arena. Task control blocks and message queue buffers are ordinary Go
// values and are not allocated from it.
package alloc

import (
	"errors"
	"sync"
)

// Sentinel errors. alloc cannot depend on sched's error values (sched
// imports alloc), so it carries its own and sched wraps them where a
// caller needs the kernel-wide error kinds.
var (
	ErrInvalidArgument = errors.New("alloc: invalid argument")
	ErrOutOfMemory     = errors.New("alloc: out of memory")
)

// alignSize is the byte boundary every allocation is rounded up to.
const alignSize = 8

// headerOverhead is the notional per-block bookkeeping cost charged when
// deciding whether a free block is worth splitting. The original kernel
// this is ported from casts a real C struct over the arena to store this
// bookkeeping in-place; this package keeps headers in a separate Go
// slice instead (see Heap.blocks) since no caller ever dereferences a
// Ptr as a real address, so there is nothing for an embedded header to
// share memory with. headerOverhead survives as a pure accounting
// constant so the split threshold still matches the original's shape.
const headerOverhead = 16

func align(n int) int {
	return (n + alignSize - 1) &^ (alignSize - 1)
}

// Ptr is an opaque handle to an allocated block. The zero Ptr is never
// returned on success and is never a valid argument to Free or Realloc.
type Ptr uintptr

type block struct {
	offset Ptr
	size   int
	free   bool
}

// Heap is a best-fit free-list allocator over an arena of a fixed total
// size, established at creation and never grown.
type Heap struct {
	mu     sync.Mutex
	total  int
	used   int
	blocks []*block // address-ordered, covers [alignSize, alignSize+total) with no gaps
}

// NewHeap creates a heap managing size bytes. size is rounded up to the
// alignment boundary.
func NewHeap(size int) *Heap {
	size = align(size)
	return &Heap{
		total:  size,
		blocks: []*block{{offset: alignSize, size: size, free: true}},
	}
}

// TotalBytes returns the heap's total capacity.
func (h *Heap) TotalBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// UsedBytes returns bytes currently allocated.
func (h *Heap) UsedBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// FreeBytes returns bytes currently available.
func (h *Heap) FreeBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total - h.used
}

// findBestFit returns the index of the smallest free block that still
// fits size, or -1 if none does. Must be called with h.mu held.
func (h *Heap) findBestFit(size int) int {
	best := -1
	bestSize := -1
	for i, b := range h.blocks {
		if b.free && b.size >= size {
			if bestSize == -1 || b.size < bestSize {
				best = i
				bestSize = b.size
			}
		}
	}
	return best
}

// splitIfWorthwhile carves a new free block out of the tail of
// h.blocks[i] when what's left over after satisfying size is large
// enough to be useful on its own. Must be called with h.mu held.
func (h *Heap) splitIfWorthwhile(i, size int) {
	b := h.blocks[i]
	if b.size < size+headerOverhead+alignSize {
		return
	}
	remainder := &block{
		offset: b.offset + Ptr(size),
		size:   b.size - size,
		free:   true,
	}
	b.size = size
	h.blocks = append(h.blocks, nil)
	copy(h.blocks[i+2:], h.blocks[i+1:])
	h.blocks[i+1] = remainder
}

// Alloc reserves size bytes and returns a handle to them. It returns
// ErrInvalidArgument for size <= 0 and ErrOutOfMemory if no free block is
// large enough, mirroring kmalloc's find_free_block/split_block pair.
func (h *Heap) Alloc(size int) (Ptr, error) {
	if size <= 0 {
		return 0, ErrInvalidArgument
	}
	aligned := align(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.findBestFit(aligned)
	if i < 0 {
		return 0, ErrOutOfMemory
	}
	h.splitIfWorthwhile(i, aligned)
	b := h.blocks[i]
	b.free = false
	h.used += b.size
	return b.offset, nil
}

// indexOf returns the index of the block at the given offset, or -1.
// Must be called with h.mu held.
func (h *Heap) indexOf(ptr Ptr) int {
	for i, b := range h.blocks {
		if b.offset == ptr {
			return i
		}
	}
	return -1
}

// mergeForward coalesces adjacent free blocks across the whole list,
// scanning from the first block, matching merge_free_blocks's
// address-order-only coalescing: a free
// block only ever merges with its immediate successor in the
// address-ordered list, never looks backward. Must be called with h.mu
// held.
func (h *Heap) mergeForward() {
	for i := 0; i < len(h.blocks)-1; {
		a, b := h.blocks[i], h.blocks[i+1]
		if a.free && b.free && a.offset+Ptr(a.size) == b.offset {
			a.size += b.size
			h.blocks = append(h.blocks[:i+1], h.blocks[i+2:]...)
			continue
		}
		i++
	}
}

// Free releases a block previously returned by Alloc. Freeing Ptr(0) or
// an unknown Ptr is a no-op, matching kfree's defensive nil check.
func (h *Heap) Free(ptr Ptr) {
	if ptr == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.indexOf(ptr)
	if i < 0 || h.blocks[i].free {
		return
	}
	b := h.blocks[i]
	if h.used >= b.size {
		h.used -= b.size
	} else {
		h.used = 0
	}
	b.free = true
	h.mergeForward()
}

// Realloc resizes a previously allocated block. A nil Ptr behaves like
// Alloc; a newSize of 0 behaves like Free. If the existing block is
// already large enough the same Ptr is returned; otherwise a new block
// is allocated, the accounted size is transferred, and the old block is
// freed (this simulation never gave Ptr a real address to copy bytes
// through, so unlike krealloc there is no memcpy step — there is no
// payload behind a Ptr to copy).
func (h *Heap) Realloc(ptr Ptr, newSize int) (Ptr, error) {
	if ptr == 0 {
		return h.Alloc(newSize)
	}
	if newSize == 0 {
		h.Free(ptr)
		return 0, nil
	}

	h.mu.Lock()
	i := h.indexOf(ptr)
	if i < 0 || h.blocks[i].free {
		h.mu.Unlock()
		return 0, ErrInvalidArgument
	}
	if h.blocks[i].size >= align(newSize) {
		h.mu.Unlock()
		return ptr, nil
	}
	h.mu.Unlock()

	newPtr, err := h.Alloc(newSize)
	if err != nil {
		return 0, err
	}
	h.Free(ptr)
	return newPtr, nil
}
