package alloc

import (
	"fmt"

	"github.com/joshuapare/deadpool/internal/format"
)

// ArenaAllocator is a best-fit allocator over a single caller-owned buffer.
//
// The free list is threaded through the arena using uint32 offsets. Alloc
// scans the whole list and stops early on an exact fit; Free finds both
// physical neighbours in one list pass.
//
// An ArenaAllocator is not safe for concurrent use; see LockedAllocator.
type ArenaAllocator struct {
	buf []byte

	base     int // first aligned offset (header of the first block)
	end      int // base + capacity
	capacity int
	align    int
	hdr      int

	// Sum of payload capacity over free blocks
	available int

	// Offset of the first free block, format.NoBlock when the arena is full
	head uint32

	// Upper bound on the number of blocks, used to stop walks on a cyclic list
	maxBlocks int

	log        Logger
	selfCheck  bool
	trackStats bool
	stats      Stats
}

// NewArena initializes an allocator over buf. The first header-sized region
// of buf is overwritten; the caller keeps ownership of buf and must not use it
// directly while the allocator is live.
//
// Parameters:
//   - buf: the arena; its start and length are trimmed to the alignment
//   - opts: configuration (use nil for defaults)
func NewArena(buf []byte, opts *Options) (*ArenaAllocator, error) {
	if opts == nil {
		opts = &Options{}
	}
	if buf == nil {
		return nil, ErrNilBuffer
	}

	align := opts.Alignment
	if align == 0 {
		align = MaxAlign
	}
	if !format.IsPow2(align) || align < format.MinAlign || align > format.MaxAlignLimit {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}

	hdr := format.HeaderSize(align)
	if len(buf) < hdr {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrBufferTooSmall, len(buf), hdr)
	}

	base := format.AlignedStart(buf, align)
	capacity := format.AlignDown(len(buf)-base, align)
	if capacity <= hdr {
		return nil, fmt.Errorf("%w: %d usable bytes after aligning to %d", ErrBufferTooSmall, capacity, align)
	}
	if int64(base)+int64(capacity) > format.MaxArenaSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBufferTooLarge, len(buf))
	}

	a := &ArenaAllocator{
		buf:        buf,
		base:       base,
		end:        base + capacity,
		capacity:   capacity,
		align:      align,
		hdr:        hdr,
		maxBlocks:  capacity/(hdr+align) + 1,
		log:        opts.Logger,
		selfCheck:  opts.SelfCheck || selfCheckEnv,
		trackStats: opts.Stats,
	}

	// One free block spanning the whole usable region
	format.WriteHeader(buf, base, format.Header{
		Next:  format.NoBlock,
		Size:  uint32(capacity - hdr),
		State: format.StateFree,
	})
	a.head = uint32(base)
	a.available = capacity - hdr

	if a.log.Info != nil {
		a.log.Info("arena initialized",
			"buffer", len(buf), "base", base, "capacity", capacity,
			"alignment", align, "header", hdr)
	}
	return a, nil
}

// Available returns the payload bytes currently free across all free blocks.
func (a *ArenaAllocator) Available() int { return a.available }

// Capacity returns the usable arena size after alignment correction.
func (a *ArenaAllocator) Capacity() int { return a.capacity }

// HeaderSize returns the per-block header size, padding included.
func (a *ArenaAllocator) HeaderSize() int { return a.hdr }

// Alignment returns the payload alignment.
func (a *ArenaAllocator) Alignment() int { return a.align }

// Base returns the buffer offset of the first block header.
func (a *ArenaAllocator) Base() int { return a.base }

// MaxAlloc returns the largest request that can succeed on an empty arena.
func (a *ArenaAllocator) MaxAlloc() int { return a.capacity - a.hdr }

// relink points prev (or the list head when prev is NoBlock) at to.
func (a *ArenaAllocator) relink(prev, to uint32) {
	if prev == format.NoBlock {
		a.head = to
		return
	}
	format.SetNext(a.buf, int(prev), to)
}
