package alloc

import "github.com/joshuapare/deadpool/internal/format"

// Ref is the arena offset of an allocation's payload.
type Ref uint32

// NilRef is the zero reference. No payload can start at offset 0 because a
// header always precedes it.
const NilRef Ref = 0

// MaxAlign is the default payload alignment.
const MaxAlign = format.MaxAlign

// Allocator defines the allocate/free contract shared by the arena and its
// wrappers.
//
// Implementations:
//   - ArenaAllocator: the single-threaded core
//   - LockedAllocator: mutex-guarded wrapper for shared use
type Allocator interface {
	// Alloc reserves size bytes and returns the payload reference and a slice
	// of exactly size bytes.
	Alloc(size int) (Ref, []byte, error)

	// Free returns a block to the arena. Freeing NilRef is a no-op.
	Free(ref Ref) error
}

// Block describes one block of the arena as seen by Blocks or FreeList.
type Block struct {
	Offset int  `json:"offset"` // header offset inside the buffer
	Size   int  `json:"size"`   // payload capacity
	Free   bool `json:"free"`   // linked into the free list
	Next   int  `json:"next"`   // next free-list block, -1 at the tail or for allocated blocks
}

// Ref returns the payload reference of b.
func (b Block) Ref(headerSize int) Ref {
	return Ref(b.Offset + headerSize)
}

// End returns the offset just past the block's payload.
func (b Block) End(headerSize int) int {
	return b.Offset + headerSize + b.Size
}
