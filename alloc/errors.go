package alloc

import "errors"

var (
	// ErrNilBuffer indicates NewArena was handed a nil buffer.
	ErrNilBuffer = errors.New("alloc: nil buffer")

	// ErrBufferTooSmall indicates the buffer cannot host a header plus a minimal payload.
	ErrBufferTooSmall = errors.New("alloc: buffer too small")

	// ErrBufferTooLarge indicates the buffer exceeds the 32-bit offset range.
	ErrBufferTooLarge = errors.New("alloc: buffer too large")

	// ErrBadAlignment indicates an alignment that is not a power of two in range.
	ErrBadAlignment = errors.New("alloc: bad alignment")

	// ErrZeroSize indicates a request for zero or a negative number of bytes.
	ErrZeroSize = errors.New("alloc: zero-size request")

	// ErrTooLarge indicates a request that could never fit in this arena.
	ErrTooLarge = errors.New("alloc: request exceeds arena capacity")

	// ErrNoSpace indicates that no free block large enough was found.
	ErrNoSpace = errors.New("alloc: no free block large enough")

	// ErrOutOfBounds indicates a reference whose header lies outside the arena.
	ErrOutOfBounds = errors.New("alloc: reference outside arena")

	// ErrInvalidPointer indicates a reference that does not name a block this arena produced.
	ErrInvalidPointer = errors.New("alloc: invalid block reference")

	// ErrDoubleFree indicates a reference whose block is already free.
	ErrDoubleFree = errors.New("alloc: double free")

	// ErrCorrupt indicates the free list or a block header failed validation.
	ErrCorrupt = errors.New("alloc: arena corrupt")
)
