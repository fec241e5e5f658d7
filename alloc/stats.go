package alloc

import "github.com/joshuapare/deadpool/internal/format"

// Stats holds allocator counters. They are only maintained when
// Options.Stats is set.
type Stats struct {
	Allocs            uint64 // successful Alloc calls
	Frees             uint64 // successful Free calls on a live block
	FailedAllocs      uint64 // Alloc calls that returned an error
	InvalidFrees      uint64 // Free calls rejected by validation
	Splits            uint64 // allocations that split their block
	WholeBlocks       uint64 // allocations that consumed their whole block
	CoalesceLeft      uint64 // merges into the preceding free block
	CoalesceRight     uint64 // merges with the following free block
	SearchSteps       uint64 // free-list blocks visited by best-fit, cumulative
	LastSearchSteps   int    // free-list blocks visited by the latest Alloc
	SelfCheckFailures uint64 // failed post-free self-checks
}

// Stats returns a copy of the counters.
func (a *ArenaAllocator) Stats() Stats {
	return a.stats
}

// Fragmentation returns 1 - largest/total over the free blocks, or 0 when
// nothing is free. 0 means all free space is one block.
func (a *ArenaAllocator) Fragmentation() float64 {
	total, largest, _ := a.freeTotals()
	if total == 0 {
		return 0
	}
	return 1 - float64(largest)/float64(total)
}

// FreeBlocks returns the length of the free list.
func (a *ArenaAllocator) FreeBlocks() int {
	_, _, n := a.freeTotals()
	return n
}

// LargestFree returns the payload capacity of the largest free block.
func (a *ArenaAllocator) LargestFree() int {
	_, largest, _ := a.freeTotals()
	return largest
}

// freeTotals walks the free list once. The walk is bounded so a corrupt
// list cannot hang an observer.
func (a *ArenaAllocator) freeTotals() (total, largest, count int) {
	for cur := a.head; cur != format.NoBlock && count < a.maxBlocks; cur = format.Next(a.buf, int(cur)) {
		if !a.inArena(int(cur)) {
			break
		}
		size := int(format.Size(a.buf, int(cur)))
		total += size
		largest = max(largest, size)
		count++
	}
	return total, largest, count
}
