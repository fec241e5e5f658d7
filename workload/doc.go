// Package workload drives an alloc.Allocator with reproducible random
// operation sequences.
//
// Run interleaves allocations and frees according to a Config, writes a seeded
// pattern into every payload and fingerprints it with xxh3. Before each free
// the fingerprint is recomputed, so any allocator bug that lets two blocks
// overlap or scribbles over payload bytes surfaces as ErrContentMismatch.
// After the operation loop every remaining block is freed.
//
// The same seed always yields the same operation sequence and the same
// Report.Digest against a fresh arena of the same size and alignment.
//
// Traces record a run as text lines that Replay can feed back to any
// allocator:
//
//	alloc b17 240
//	free b17
package workload
