package verify

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/joshuapare/deadpool/alloc"
)

// ValidationError describes one failed invariant.
type ValidationError struct {
	Type    string
	Message string
	Offset  int
	Details map[string]any
}

// Error formats the failure with its offset when one is known.
func (e *ValidationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset 0x%X: %s", e.Type, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// layout is one physical walk of the arena, indexed by roaring bitmaps of
// header offsets.
type layout struct {
	blocks    []alloc.Block
	free      *roaring.Bitmap
	allocated *roaring.Bitmap
	freeBytes int
}

func scan(a *alloc.ArenaAllocator) (*layout, error) {
	l := &layout{free: roaring.New(), allocated: roaring.New()}
	err := a.Blocks(func(b alloc.Block) bool {
		l.blocks = append(l.blocks, b)
		if b.Free {
			l.free.Add(uint32(b.Offset))
			l.freeBytes += b.Size
		} else {
			l.allocated.Add(uint32(b.Offset))
		}
		return true
	})
	if err != nil {
		return nil, &ValidationError{Type: "Tiling", Message: err.Error(), Offset: -1}
	}
	return l, nil
}

// AllInvariants validates every arena invariant in one call.
// Returns the first error encountered, or nil if all checks pass.
func AllInvariants(a *alloc.ArenaAllocator) error {
	l, err := scan(a)
	if err != nil {
		return err
	}
	for _, check := range []func(*alloc.ArenaAllocator, *layout) error{
		tiling, freeList, coalesced, accounting,
	} {
		if err := check(a, l); err != nil {
			return err
		}
	}
	return nil
}

// Tiling validates that blocks cover [Base, Base+Capacity) exactly.
func Tiling(a *alloc.ArenaAllocator) error {
	l, err := scan(a)
	if err != nil {
		return err
	}
	return tiling(a, l)
}

// FreeList validates that the free list holds exactly the free blocks.
func FreeList(a *alloc.ArenaAllocator) error {
	l, err := scan(a)
	if err != nil {
		return err
	}
	return freeList(a, l)
}

// Coalesced validates that no two free blocks are physically adjacent.
func Coalesced(a *alloc.ArenaAllocator) error {
	l, err := scan(a)
	if err != nil {
		return err
	}
	return coalesced(a, l)
}

// Accounting validates that Available matches the free blocks.
func Accounting(a *alloc.ArenaAllocator) error {
	l, err := scan(a)
	if err != nil {
		return err
	}
	return accounting(a, l)
}

func tiling(a *alloc.ArenaAllocator, l *layout) error {
	hdr := a.HeaderSize()
	covered := roaring.New()
	for _, b := range l.blocks {
		start, end := uint64(b.Offset), uint64(b.End(hdr))
		span := roaring.New()
		span.AddRange(start, end)
		if covered.Intersects(span) {
			return &ValidationError{
				Type:    "Tiling",
				Message: "block overlaps an earlier block",
				Offset:  b.Offset,
				Details: map[string]any{"size": b.Size},
			}
		}
		covered.Or(span)
	}

	lo, hi := uint64(a.Base()), uint64(a.Base()+a.Capacity())
	want := roaring.New()
	want.AddRange(lo, hi)
	if !covered.Equals(want) {
		missing := roaring.AndNot(want, covered)
		off := -1
		if !missing.IsEmpty() {
			off = int(missing.Minimum())
		}
		return &ValidationError{
			Type:    "Tiling",
			Message: fmt.Sprintf("blocks cover %d of %d arena bytes", covered.GetCardinality(), hi-lo),
			Offset:  off,
		}
	}
	return nil
}

func freeList(a *alloc.ArenaAllocator, l *layout) error {
	listed := roaring.New()
	var dup *alloc.Block
	err := a.FreeList(func(b alloc.Block) bool {
		if !listed.CheckedAdd(uint32(b.Offset)) {
			dup = &b
			return false
		}
		return true
	})
	if err != nil {
		return &ValidationError{Type: "FreeList", Message: err.Error(), Offset: -1}
	}
	if dup != nil {
		return &ValidationError{Type: "FreeList", Message: "block listed twice", Offset: dup.Offset}
	}

	if stray := roaring.AndNot(listed, l.free); !stray.IsEmpty() {
		return &ValidationError{
			Type:    "FreeList",
			Message: "listed block is not a free block",
			Offset:  int(stray.Minimum()),
			Details: map[string]any{"count": stray.GetCardinality()},
		}
	}
	if lost := roaring.AndNot(l.free, listed); !lost.IsEmpty() {
		return &ValidationError{
			Type:    "FreeList",
			Message: "free block missing from free list",
			Offset:  int(lost.Minimum()),
			Details: map[string]any{"count": lost.GetCardinality()},
		}
	}
	return nil
}

func coalesced(a *alloc.ArenaAllocator, l *layout) error {
	hdr := a.HeaderSize()
	for i := 1; i < len(l.blocks); i++ {
		prev, cur := l.blocks[i-1], l.blocks[i]
		if prev.Free && cur.Free && prev.End(hdr) == cur.Offset {
			return &ValidationError{
				Type:    "Coalesced",
				Message: fmt.Sprintf("free block follows free block at 0x%X", prev.Offset),
				Offset:  cur.Offset,
			}
		}
	}
	return nil
}

func accounting(a *alloc.ArenaAllocator, l *layout) error {
	if l.freeBytes != a.Available() {
		return &ValidationError{
			Type:    "Accounting",
			Message: fmt.Sprintf("free blocks hold %d bytes, allocator reports %d", l.freeBytes, a.Available()),
			Offset:  -1,
		}
	}
	return nil
}

// Live validates that refs are exactly the allocated blocks of the arena.
func Live(a *alloc.ArenaAllocator, refs []alloc.Ref) error {
	l, err := scan(a)
	if err != nil {
		return err
	}
	hdr := uint32(a.HeaderSize())
	held := roaring.New()
	for _, ref := range refs {
		if uint32(ref) < hdr || !held.CheckedAdd(uint32(ref)-hdr) {
			return &ValidationError{Type: "Live", Message: fmt.Sprintf("ref 0x%X invalid or repeated", ref), Offset: int(ref)}
		}
	}
	if unknown := roaring.AndNot(held, l.allocated); !unknown.IsEmpty() {
		return &ValidationError{
			Type:    "Live",
			Message: "held reference does not name an allocated block",
			Offset:  int(unknown.Minimum()),
		}
	}
	if leaked := roaring.AndNot(l.allocated, held); !leaked.IsEmpty() {
		return &ValidationError{
			Type:    "Live",
			Message: fmt.Sprintf("%d allocated blocks have no holder", leaked.GetCardinality()),
			Offset:  int(leaked.Minimum()),
		}
	}
	return nil
}

// Summary describes the arena layout.
type Summary struct {
	Blocks          int     `json:"blocks"`
	FreeBlocks      int     `json:"free_blocks"`
	AllocatedBlocks int     `json:"allocated_blocks"`
	FreeBytes       int     `json:"free_bytes"`
	AllocatedBytes  int     `json:"allocated_bytes"`
	HeaderBytes     int     `json:"header_bytes"`
	LargestFree     int     `json:"largest_free"`
	Fragmentation   float64 `json:"fragmentation"`
}

// Summarize walks the arena once and reports its layout.
func Summarize(a *alloc.ArenaAllocator) (Summary, error) {
	l, err := scan(a)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Blocks:          len(l.blocks),
		FreeBlocks:      int(l.free.GetCardinality()),
		AllocatedBlocks: int(l.allocated.GetCardinality()),
		FreeBytes:       l.freeBytes,
		HeaderBytes:     len(l.blocks) * a.HeaderSize(),
		Fragmentation:   a.Fragmentation(),
	}
	for _, b := range l.blocks {
		if b.Free {
			s.LargestFree = max(s.LargestFree, b.Size)
		} else {
			s.AllocatedBytes += b.Size
		}
	}
	return s, nil
}
