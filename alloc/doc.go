// Package alloc provides a fixed-arena, general-purpose allocator.
//
// # Overview
//
// The caller supplies one buffer up front. The allocator carves it into blocks,
// each prefixed by a small header stored inside the buffer, and threads every
// free block onto a singly linked free list addressed by arena offsets.
//
//   - Alloc performs a best-fit scan of the free list and splits the winner
//     when the remainder can host another block.
//   - Free validates the reference, merges the block with its physically
//     adjacent free neighbours and links the result back into the free list.
//
// No memory is ever requested from the Go runtime after NewArena returns.
//
// # Usage Example
//
//	buf := make([]byte, 64<<10)
//	a, err := alloc.NewArena(buf, nil)
//	if err != nil {
//	    return err
//	}
//
//	ref, p, err := a.Alloc(100)
//	if err != nil {
//	    return err // alloc.ErrNoSpace when nothing fits
//	}
//	copy(p, payload)
//
//	// Later
//	err = a.Free(ref)
//
// # Block Layout
//
//	[next u32][size u32][state u8][pad to alignment][payload ...]
//
// Every payload starts at a multiple of the configured alignment (MaxAlign by
// default) because the arena start, the padded header and every block size are
// all multiples of it. A Ref is the arena offset of a payload; NilRef (0) is
// never a valid payload offset and freeing it is a no-op.
//
// # Accounting
//
// Available reports the sum of payload capacity over all free blocks. Header
// bytes are never counted: splitting a block consumes one header, merging two
// blocks returns one.
//
// # Thread Safety
//
// ArenaAllocator is not thread-safe. Wrap it with NewLocked to share one arena
// between goroutines.
package alloc
