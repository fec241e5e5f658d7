// Package verify provides whole-arena structural validation for
// alloc.ArenaAllocator.
//
// # Overview
//
// Where (*alloc.ArenaAllocator).Check only walks the free list, this package
// cross-checks the physical block layout against it. It is used by tests, by
// the workload driver after every step, and by the dpctl CLI.
//
// Validation categories:
//   - Tiling: blocks cover the arena exactly, without gaps or overlap
//   - Free list: listed blocks are exactly the free blocks, each once
//   - Coalescing: no two free blocks are physically adjacent
//   - Accounting: the allocator's available count matches the free blocks
//   - Live set: caller-held references name allocated blocks
//
// # Quick Start
//
//	if err := verify.AllInvariants(a); err != nil {
//	    fmt.Printf("Validation failed: %v\n", err)
//	}
//
//	s, err := verify.Summarize(a)
//	fmt.Printf("%d blocks, %.2f fragmentation\n", s.Blocks, s.Fragmentation)
//
// # ValidationError
//
// Every failure is a *ValidationError carrying the check name, a message, the
// offending offset (-1 when not tied to one) and optional details.
package verify
