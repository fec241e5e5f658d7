package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/deadpool/internal/format"
)

// threeBlocks allocates three 64-byte blocks at offsets 0, 80 and 160 and
// leaves a 768-byte tail at 240.
func threeBlocks(t *testing.T, opts *Options) (*ArenaAllocator, []byte, [3]Ref) {
	t.Helper()
	a, buf := newTestArena(t, 1024, opts)
	var refs [3]Ref
	for i := range refs {
		ref, _, err := a.Alloc(64)
		require.NoError(t, err)
		refs[i] = ref
	}
	require.Equal(t, [3]Ref{16, 96, 176}, refs)
	require.Equal(t, 768, a.Available())
	return a, buf, refs
}

func TestFree_NilRefIsNoop(t *testing.T) {
	a, buf, _ := threeBlocks(t, nil)
	before := append([]byte(nil), buf...)

	require.NoError(t, a.Free(NilRef))
	assert.Equal(t, before, buf)
	assert.Equal(t, 768, a.Available())
}

func TestFree_NoNeighbourPushesHead(t *testing.T) {
	a, _, refs := threeBlocks(t, &Options{Stats: true})

	require.NoError(t, a.Free(refs[1]))
	assert.Equal(t, 768+64, a.Available())

	list := collectFreeList(t, a)
	require.Len(t, list, 2)
	assert.Equal(t, 80, list[0].Offset)
	assert.Equal(t, 240, list[1].Offset)

	st := a.Stats()
	assert.Equal(t, uint64(1), st.Frees)
	assert.Zero(t, st.CoalesceLeft)
	assert.Zero(t, st.CoalesceRight)
	assertInvariants(t, a, nil)
}

func TestFree_CoalesceLeft(t *testing.T) {
	a, _, refs := threeBlocks(t, &Options{Stats: true})

	require.NoError(t, a.Free(refs[0]))
	require.NoError(t, a.Free(refs[1]))

	// Block 0 grew over block 1 and kept its list position
	list := collectFreeList(t, a)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].Offset)
	assert.Equal(t, 64+16+64, list[0].Size)
	assert.Equal(t, 768+64+80, a.Available())
	assert.Equal(t, uint64(1), a.Stats().CoalesceLeft)
	assertInvariants(t, a, map[Ref]int{refs[2]: 64})
}

func TestFree_CoalesceLeftFromListMiddle(t *testing.T) {
	a, _ := newTestArena(t, 1024, &Options{Stats: true})
	var refs [5]Ref
	for i := range refs {
		ref, _, err := a.Alloc(64)
		require.NoError(t, err)
		refs[i] = ref
	}
	require.Equal(t, 608, a.Available())

	require.NoError(t, a.Free(refs[0]))
	require.NoError(t, a.Free(refs[3]))
	// List is now 240 -> 0 -> 400; block 0 sits mid-list
	require.NoError(t, a.Free(refs[1]))

	list := collectFreeList(t, a)
	require.Len(t, list, 3)
	assert.Equal(t, 240, list[0].Offset)
	assert.Equal(t, 0, list[1].Offset)
	assert.Equal(t, 64+16+64, list[1].Size)
	assert.Equal(t, 400, list[2].Offset)
	assert.Equal(t, 608+64+64+80, a.Available())

	st := a.Stats()
	assert.Equal(t, uint64(1), st.CoalesceLeft)
	assert.Zero(t, st.CoalesceRight)
	assertInvariants(t, a, map[Ref]int{refs[2]: 64, refs[4]: 64})
}

func TestFree_CoalesceRight(t *testing.T) {
	a, _, refs := threeBlocks(t, &Options{Stats: true})

	// Block 2 sits right before the tail
	require.NoError(t, a.Free(refs[2]))

	list := collectFreeList(t, a)
	require.Len(t, list, 1)
	assert.Equal(t, 160, list[0].Offset)
	assert.Equal(t, 64+16+768, list[0].Size)
	assert.Equal(t, 768+80, a.Available())
	assert.Equal(t, uint64(1), a.Stats().CoalesceRight)
	assertInvariants(t, a, nil)
}

func TestFree_CoalesceRightKeepsListPosition(t *testing.T) {
	a, _, refs := threeBlocks(t, nil)

	// List: block 0 -> tail. Block 2 absorbs the tail and takes its place.
	require.NoError(t, a.Free(refs[0]))
	require.NoError(t, a.Free(refs[2]))

	list := collectFreeList(t, a)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].Offset)
	assert.Equal(t, 160, list[0].Next)
	assert.Equal(t, 160, list[1].Offset)
	assert.Equal(t, 1024-160-16, list[1].Size)
	assertInvariants(t, a, map[Ref]int{refs[1]: 64})
}

func TestFree_MergeBothFromListMiddle(t *testing.T) {
	a, _, refs := threeBlocks(t, nil)

	// List: block 1 -> tail. Freeing block 2 joins block 1 and the tail.
	require.NoError(t, a.Free(refs[1]))
	require.NoError(t, a.Free(refs[2]))

	list := collectFreeList(t, a)
	require.Len(t, list, 1)
	assert.Equal(t, 80, list[0].Offset)
	assert.Equal(t, 1024-80-16, list[0].Size)
	assertInvariants(t, a, map[Ref]int{refs[0]: 64})
}

func TestFree_CoalesceBoth(t *testing.T) {
	a, _, refs := threeBlocks(t, &Options{Stats: true})

	require.NoError(t, a.Free(refs[0]))
	require.NoError(t, a.Free(refs[2]))
	require.Equal(t, 2, a.FreeBlocks())

	require.NoError(t, a.Free(refs[1]))
	list := collectFreeList(t, a)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].Offset)
	assert.Equal(t, 1008, list[0].Size)
	assert.Equal(t, -1, list[0].Next)
	assert.Equal(t, 1008, a.Available())

	st := a.Stats()
	assert.Equal(t, uint64(1), st.CoalesceLeft)
	assert.Equal(t, uint64(2), st.CoalesceRight)
	assertInvariants(t, a, nil)
}

func TestFree_DoubleFree(t *testing.T) {
	a, _, refs := threeBlocks(t, &Options{Stats: true})

	require.NoError(t, a.Free(refs[1]))
	avail := a.Available()

	err := a.Free(refs[1])
	require.ErrorIs(t, err, ErrDoubleFree)
	assert.Equal(t, avail, a.Available())
	assert.Equal(t, uint64(1), a.Stats().InvalidFrees)
	assertInvariants(t, a, nil)
}

func TestFree_StaleRefInsideMergedBlock(t *testing.T) {
	a, _, refs := threeBlocks(t, nil)

	require.NoError(t, a.Free(refs[0]))
	require.NoError(t, a.Free(refs[1])) // absorbed by block 0
	avail := a.Available()

	require.ErrorIs(t, a.Free(refs[1]), ErrDoubleFree)
	require.ErrorIs(t, a.Free(refs[0]), ErrDoubleFree)
	assert.Equal(t, avail, a.Available())
	assertInvariants(t, a, nil)
}

func TestFree_OutOfBounds(t *testing.T) {
	a, _, _ := threeBlocks(t, nil)

	for _, ref := range []Ref{8, 20, 1016, 1040, 4096, Ref(format.NoBlock)} {
		err := a.Free(ref)
		require.ErrorIs(t, err, ErrOutOfBounds, "ref 0x%X", ref)
	}
	assert.Equal(t, 768, a.Available())
}

func TestFree_OutsideBuffer(t *testing.T) {
	raw := alignedBuf(t, 2048)
	a, err := NewArena(raw[:1024], nil)
	require.NoError(t, err)

	// A reference into memory past the arena, even if addressable
	require.ErrorIs(t, a.Free(Ref(1024+16)), ErrOutOfBounds)
}

func TestFree_InvalidPointer(t *testing.T) {
	t.Run("garbage tag", func(t *testing.T) {
		a, buf, refs := threeBlocks(t, nil)
		format.SetState(buf, int(refs[1])-16, 0x00)
		require.ErrorIs(t, a.Free(refs[1]), ErrInvalidPointer)
	})

	t.Run("allocated but linked", func(t *testing.T) {
		a, buf, refs := threeBlocks(t, nil)
		format.SetNext(buf, int(refs[1])-16, 240)
		require.ErrorIs(t, a.Free(refs[1]), ErrInvalidPointer)
		assert.Equal(t, 768, a.Available())
	})

	t.Run("size past arena end", func(t *testing.T) {
		a, buf, refs := threeBlocks(t, nil)
		format.SetSize(buf, int(refs[1])-16, 4096)
		require.ErrorIs(t, a.Free(refs[1]), ErrInvalidPointer)
	})

	t.Run("inside a payload", func(t *testing.T) {
		a, _, refs := threeBlocks(t, nil)
		require.ErrorIs(t, a.Free(refs[0]+32), ErrInvalidPointer)
	})
}

func TestFree_DrainCoalescesToOneBlock(t *testing.T) {
	a, _ := newTestArena(t, 4096, nil)

	var refs []Ref
	for size := 1; ; size += 13 {
		ref, _, err := a.Alloc(size)
		if err != nil {
			require.ErrorIs(t, err, ErrNoSpace)
			break
		}
		refs = append(refs, ref)
	}
	require.NotEmpty(t, refs)

	// Free odd then even to exercise every merge shape
	for i := 1; i < len(refs); i += 2 {
		require.NoError(t, a.Free(refs[i]))
	}
	for i := 0; i < len(refs); i += 2 {
		require.NoError(t, a.Free(refs[i]))
	}

	list := collectFreeList(t, a)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].Offset)
	assert.Equal(t, -1, list[0].Next)
	assert.Equal(t, a.MaxAlloc(), a.Available())
	assertInvariants(t, a, nil)
}
