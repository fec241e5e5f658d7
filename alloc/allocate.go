package alloc

import (
	"fmt"

	"github.com/joshuapare/deadpool/internal/format"
)

// Alloc reserves size bytes using best-fit over the free list.
//
// The returned slice has length and capacity size; the block behind it may be
// larger because requests are rounded up to the alignment. Fails with
// ErrZeroSize, ErrTooLarge or ErrNoSpace without touching the arena.
func (a *ArenaAllocator) Alloc(size int) (Ref, []byte, error) {
	if size <= 0 {
		a.failedAlloc()
		return NilRef, nil, ErrZeroSize
	}
	if size > a.capacity-a.hdr {
		a.failedAlloc()
		return NilRef, nil, fmt.Errorf("%w: %d bytes, arena holds at most %d", ErrTooLarge, size, a.capacity-a.hdr)
	}
	need := format.AlignUp(size, a.align)

	best, bestPrev, fit, steps, err := a.bestFit(need)
	if a.trackStats {
		a.stats.SearchSteps += uint64(steps)
		a.stats.LastSearchSteps = steps
	}
	if err != nil {
		a.failedAlloc()
		if a.log.Error != nil {
			a.log.Error("free list walk failed", "size", size, "err", err)
		}
		return NilRef, nil, err
	}
	if best == format.NoBlock {
		a.failedAlloc()
		if a.log.Warning != nil {
			a.log.Warning("no free block large enough",
				"size", size, "need", need, "available", a.available, "steps", steps)
		}
		return NilRef, nil, fmt.Errorf("%w: need %d bytes, %d free", ErrNoSpace, need, a.available)
	}

	off := int(best)
	next := format.Next(a.buf, off)

	// The remainder must host a header plus one aligned unit of payload,
	// otherwise the whole block goes out and the slack stays inside it.
	if fit >= a.hdr+a.align {
		tail := off + a.hdr + need
		format.WriteHeader(a.buf, tail, format.Header{
			Next:  next,
			Size:  uint32(fit - a.hdr),
			State: format.StateFree,
		})
		// Tail takes the winner's place in the list
		a.relink(bestPrev, uint32(tail))
		format.SetSize(a.buf, off, uint32(need))
		a.available -= need + a.hdr
		if a.trackStats {
			a.stats.Splits++
		}
	} else {
		a.relink(bestPrev, next)
		a.available -= need + fit
		if a.trackStats {
			a.stats.WholeBlocks++
		}
	}

	format.SetNext(a.buf, off, format.NoBlock)
	format.SetState(a.buf, off, format.StateAllocated)
	if a.trackStats {
		a.stats.Allocs++
	}

	ref := off + a.hdr
	if a.log.Debug != nil {
		a.log.Debug("allocated block",
			"size", size, "offset", off, "block", format.Size(a.buf, off),
			"fit", fit, "steps", steps, "available", a.available)
	}
	return Ref(ref), a.buf[ref : ref+size : ref+size], nil
}

// bestFit walks the free list once and returns the block with the smallest
// non-negative leftover, its predecessor and the leftover. The first block
// wins ties and an exact fit ends the walk. best is NoBlock when nothing fits.
func (a *ArenaAllocator) bestFit(need int) (best, bestPrev uint32, fit, steps int, err error) {
	best, bestPrev = format.NoBlock, format.NoBlock
	prev := format.NoBlock

	for cur := a.head; cur != format.NoBlock; cur = format.Next(a.buf, int(cur)) {
		if steps >= a.maxBlocks || !a.inArena(int(cur)) {
			return format.NoBlock, format.NoBlock, 0, steps,
				fmt.Errorf("%w: free list broken at 0x%X after %d blocks", ErrCorrupt, cur, steps)
		}
		steps++

		size := int(format.Size(a.buf, int(cur)))
		if size >= need {
			leftover := size - need
			if best == format.NoBlock || leftover < fit {
				best, bestPrev, fit = cur, prev, leftover
				if leftover == 0 {
					break
				}
			}
		}
		prev = cur
	}
	return best, bestPrev, fit, steps, nil
}

// inArena reports whether a header can start at off.
func (a *ArenaAllocator) inArena(off int) bool {
	return off >= a.base && off+a.hdr <= a.end && (off-a.base)%a.align == 0
}

func (a *ArenaAllocator) failedAlloc() {
	if a.trackStats {
		a.stats.FailedAllocs++
	}
}
