package alloc

import (
	"fmt"

	"github.com/joshuapare/deadpool/internal/format"
)

// Free returns the block behind ref to the arena and merges it with any
// physically adjacent free block. Freeing NilRef is a no-op.
//
// Validation happens before any mutation:
//   - ErrOutOfBounds: the header would lie outside the arena
//   - ErrInvalidPointer: the header is not an allocated block header
//   - ErrDoubleFree: the block is already free
func (a *ArenaAllocator) Free(ref Ref) error {
	if ref == NilRef {
		return nil
	}

	off := int(ref) - a.hdr
	if !a.inArena(off) {
		return a.invalidFree(ref, fmt.Errorf("%w: ref 0x%X, arena [0x%X, 0x%X)", ErrOutOfBounds, ref, a.base, a.end))
	}

	h, err := format.ReadHeader(a.buf, off)
	if err != nil {
		return a.invalidFree(ref, fmt.Errorf("%w: %w", ErrOutOfBounds, err))
	}
	size := int(h.Size)
	switch {
	case !h.State.Valid():
		return a.invalidFree(ref, fmt.Errorf("%w: ref 0x%X has state tag 0x%02X", ErrInvalidPointer, ref, uint8(h.State)))
	case h.State == format.StateFree:
		return a.invalidFree(ref, fmt.Errorf("%w: ref 0x%X", ErrDoubleFree, ref))
	case h.Next != format.NoBlock:
		return a.invalidFree(ref, fmt.Errorf("%w: ref 0x%X is allocated but linked to 0x%X", ErrInvalidPointer, ref, h.Next))
	case size%a.align != 0 || off+a.hdr+size > a.end:
		return a.invalidFree(ref, fmt.Errorf("%w: ref 0x%X has size %d past arena end", ErrInvalidPointer, ref, size))
	}

	end := off + a.hdr + size
	left, right, rightPrev, err := a.neighbours(off, end)
	if err != nil {
		return a.invalidFree(ref, err)
	}

	switch {
	case left != format.NoBlock && right != format.NoBlock:
		// Left absorbs us and right; right leaves the list
		l, r := int(left), int(right)
		merged := int(format.Size(a.buf, l)) + a.hdr + size + a.hdr + int(format.Size(a.buf, r))
		format.SetSize(a.buf, l, uint32(merged))
		a.relink(rightPrev, format.Next(a.buf, r))
		a.tombstone(off)
		a.tombstone(r)
		a.available += size + 2*a.hdr
		a.countCoalesce(true, true)

	case left != format.NoBlock:
		// Left keeps its list position
		l := int(left)
		format.SetSize(a.buf, l, format.Size(a.buf, l)+uint32(a.hdr+size))
		a.tombstone(off)
		a.available += size + a.hdr
		a.countCoalesce(true, false)

	case right != format.NoBlock:
		// We take right's list position
		r := int(right)
		format.WriteHeader(a.buf, off, format.Header{
			Next:  format.Next(a.buf, r),
			Size:  uint32(size + a.hdr + int(format.Size(a.buf, r))),
			State: format.StateFree,
		})
		a.relink(rightPrev, uint32(off))
		a.tombstone(r)
		a.available += size + a.hdr
		a.countCoalesce(false, true)

	default:
		format.WriteHeader(a.buf, off, format.Header{
			Next:  a.head,
			Size:  uint32(size),
			State: format.StateFree,
		})
		a.head = uint32(off)
		a.available += size
	}

	if a.trackStats {
		a.stats.Frees++
	}
	if a.log.Debug != nil {
		a.log.Debug("freed block",
			"offset", off, "size", size,
			"left", left != format.NoBlock, "right", right != format.NoBlock,
			"available", a.available)
	}

	if a.selfCheck {
		if err := a.Check(); err != nil {
			if a.trackStats {
				a.stats.SelfCheckFailures++
			}
			if a.log.Error != nil {
				a.log.Error("self-check failed after free", "offset", off, "err", err)
			}
		}
	}
	return nil
}

// neighbours scans the free list once for the block ending at off (left) and
// the block starting at end (right). A left merge never relinks, so only the
// right neighbour's predecessor is returned.
func (a *ArenaAllocator) neighbours(off, end int) (left, right, rightPrev uint32, err error) {
	left = format.NoBlock
	right, rightPrev = format.NoBlock, format.NoBlock
	prev := format.NoBlock

	steps := 0
	for cur := a.head; cur != format.NoBlock; cur = format.Next(a.buf, int(cur)) {
		c := int(cur)
		if steps >= a.maxBlocks || !a.inArena(c) {
			return left, right, rightPrev,
				fmt.Errorf("%w: free list broken at 0x%X after %d blocks", ErrCorrupt, cur, steps)
		}
		steps++

		switch {
		case c+a.hdr+int(format.Size(a.buf, c)) == off:
			left = cur
		case c == end:
			right, rightPrev = cur, prev
		}
		if left != format.NoBlock && right != format.NoBlock {
			break
		}
		prev = cur
	}
	return left, right, rightPrev, nil
}

// tombstone marks a header swallowed by a merge as free so that a stale
// reference to it is reported as a double free.
func (a *ArenaAllocator) tombstone(off int) {
	format.SetState(a.buf, off, format.StateFree)
	format.SetNext(a.buf, off, format.NoBlock)
}

func (a *ArenaAllocator) invalidFree(ref Ref, err error) error {
	if a.trackStats {
		a.stats.InvalidFrees++
	}
	if a.log.Error != nil {
		a.log.Error("rejected free", "ref", uint32(ref), "err", err)
	}
	return err
}

func (a *ArenaAllocator) countCoalesce(left, right bool) {
	if !a.trackStats {
		return
	}
	if left {
		a.stats.CoalesceLeft++
	}
	if right {
		a.stats.CoalesceRight++
	}
}
