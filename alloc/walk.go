package alloc

import (
	"fmt"

	"github.com/joshuapare/deadpool/internal/format"
)

// Blocks walks the arena in physical order and calls fn for every block until
// fn returns false. It fails with ErrCorrupt on a header that cannot be
// decoded or does not tile the arena.
func (a *ArenaAllocator) Blocks(fn func(Block) bool) error {
	for off := a.base; off < a.end; {
		h, err := format.ReadHeader(a.buf, off)
		if err != nil || off+a.hdr > a.end {
			return fmt.Errorf("%w: header at 0x%X overruns arena end 0x%X", ErrCorrupt, off, a.end)
		}
		if !h.State.Valid() {
			return fmt.Errorf("%w: header at 0x%X has state tag 0x%02X", ErrCorrupt, off, uint8(h.State))
		}
		next := off + a.hdr + int(h.Size)
		if int(h.Size)%a.align != 0 || next > a.end {
			return fmt.Errorf("%w: block at 0x%X has size %d", ErrCorrupt, off, h.Size)
		}
		if !fn(a.block(off, h)) {
			return nil
		}
		off = next
	}
	return nil
}

// FreeList walks the free list in list order and calls fn for every block
// until fn returns false.
func (a *ArenaAllocator) FreeList(fn func(Block) bool) error {
	steps := 0
	for cur := a.head; cur != format.NoBlock; {
		off := int(cur)
		if steps >= a.maxBlocks {
			return fmt.Errorf("%w: free list longer than %d blocks (cycle?)", ErrCorrupt, a.maxBlocks)
		}
		if !a.inArena(off) {
			return fmt.Errorf("%w: free list link 0x%X outside arena", ErrCorrupt, cur)
		}
		steps++
		h, err := format.ReadHeader(a.buf, off)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if !fn(a.block(off, h)) {
			return nil
		}
		cur = h.Next
	}
	return nil
}

// Check validates the free list: every link lands on an aligned header inside
// the arena, every listed block is tagged free and fits the arena, the list is
// acyclic and the sizes add up to Available.
func (a *ArenaAllocator) Check() error {
	total := 0
	var inner error
	err := a.FreeList(func(b Block) bool {
		if !b.Free {
			inner = fmt.Errorf("%w: listed block at 0x%X is not free", ErrCorrupt, b.Offset)
			return false
		}
		if b.End(a.hdr) > a.end {
			inner = fmt.Errorf("%w: listed block at 0x%X ends past arena", ErrCorrupt, b.Offset)
			return false
		}
		total += b.Size
		return true
	})
	if err != nil {
		return err
	}
	if inner != nil {
		return inner
	}
	if total != a.available {
		return fmt.Errorf("%w: free list holds %d bytes, available is %d", ErrCorrupt, total, a.available)
	}
	return nil
}

// Payload returns the full payload of the live allocation behind ref. Its
// length is the block capacity, which may exceed the original request.
func (a *ArenaAllocator) Payload(ref Ref) ([]byte, error) {
	off := int(ref) - a.hdr
	if ref == NilRef || !a.inArena(off) {
		return nil, fmt.Errorf("%w: ref 0x%X", ErrOutOfBounds, ref)
	}
	h, err := format.ReadHeader(a.buf, off)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfBounds, err)
	}
	if h.State != format.StateAllocated || h.Next != format.NoBlock {
		return nil, fmt.Errorf("%w: ref 0x%X is %s", ErrInvalidPointer, ref, h.State)
	}
	size := int(h.Size)
	if off+a.hdr+size > a.end {
		return nil, fmt.Errorf("%w: ref 0x%X has size %d past arena end", ErrInvalidPointer, ref, size)
	}
	start := int(ref)
	return a.buf[start : start+size : start+size], nil
}

func (a *ArenaAllocator) block(off int, h format.Header) Block {
	b := Block{
		Offset: off,
		Size:   int(h.Size),
		Free:   h.State == format.StateFree,
		Next:   -1,
	}
	if h.Next != format.NoBlock {
		b.Next = int(h.Next)
	}
	return b
}
