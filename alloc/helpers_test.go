package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/deadpool/internal/format"
)

// alignedBuf returns a buffer of n bytes whose first byte sits on a MaxAlign
// boundary, so block offsets in tests start at 0.
func alignedBuf(t testing.TB, n int) []byte {
	t.Helper()
	raw := make([]byte, n+format.MaxAlignLimit)
	start := format.AlignedStart(raw, format.MaxAlignLimit)
	return raw[start : start+n : start+n]
}

// newTestArena builds an allocator over an aligned buffer of n bytes.
func newTestArena(t testing.TB, n int, opts *Options) (*ArenaAllocator, []byte) {
	t.Helper()
	buf := alignedBuf(t, n)
	a, err := NewArena(buf, opts)
	require.NoError(t, err)
	return a, buf
}

// collectBlocks returns the physical block layout.
func collectBlocks(t testing.TB, a *ArenaAllocator) []Block {
	t.Helper()
	var out []Block
	require.NoError(t, a.Blocks(func(b Block) bool {
		out = append(out, b)
		return true
	}))
	return out
}

// collectFreeList returns the free list in list order.
func collectFreeList(t testing.TB, a *ArenaAllocator) []Block {
	t.Helper()
	var out []Block
	require.NoError(t, a.FreeList(func(b Block) bool {
		out = append(out, b)
		return true
	}))
	return out
}

// assertInvariants checks the structural invariants of the arena:
//  1. blocks tile [base, base+capacity) exactly
//  2. the free list holds exactly the free blocks, once each
//  3. no two free blocks are physically adjacent
//  4. available equals the summed payload of free blocks
//  5. every live ref names an allocated block
func assertInvariants(t testing.TB, a *ArenaAllocator, live map[Ref]int) {
	t.Helper()

	blocks := collectBlocks(t, a)
	require.NotEmpty(t, blocks)

	pos := a.Base()
	freeSum := 0
	physFree := make(map[int]bool)
	allocated := make(map[Ref]int)
	prevFree := false
	for _, b := range blocks {
		require.Equal(t, pos, b.Offset, "gap or overlap at 0x%X", pos)
		require.Zero(t, b.Size%a.Alignment(), "block 0x%X size %d not aligned", b.Offset, b.Size)
		if b.Free {
			require.False(t, prevFree, "adjacent free blocks at 0x%X", b.Offset)
			physFree[b.Offset] = true
			freeSum += b.Size
		} else {
			require.Equal(t, -1, b.Next, "allocated block 0x%X still linked", b.Offset)
			allocated[b.Ref(a.HeaderSize())] = b.Size
		}
		prevFree = b.Free
		pos = b.End(a.HeaderSize())
	}
	require.Equal(t, a.Base()+a.Capacity(), pos, "blocks do not reach arena end")

	listed := make(map[int]bool)
	for _, b := range collectFreeList(t, a) {
		require.True(t, b.Free, "listed block 0x%X not free", b.Offset)
		require.False(t, listed[b.Offset], "block 0x%X listed twice", b.Offset)
		listed[b.Offset] = true
	}
	require.Equal(t, physFree, listed, "free list differs from free blocks")
	require.Equal(t, freeSum, a.Available())
	require.Equal(t, len(listed), a.FreeBlocks())
	require.NoError(t, a.Check())

	for ref, size := range live {
		capacity, ok := allocated[ref]
		require.True(t, ok, "live ref 0x%X has no allocated block", ref)
		require.GreaterOrEqual(t, capacity, size)
	}
	if live != nil {
		require.Len(t, allocated, len(live))
	}
}

// fill writes a pattern derived from seed into p.
func fill(p []byte, seed byte) {
	for i := range p {
		p[i] = seed + byte(i)
	}
}

// requireFilled asserts p still holds the pattern written by fill.
func requireFilled(t testing.TB, p []byte, seed byte) {
	t.Helper()
	for i := range p {
		if p[i] != seed+byte(i) {
			require.Failf(t, "payload corrupted", "byte %d is 0x%02X, want 0x%02X", i, p[i], seed+byte(i))
		}
	}
}
