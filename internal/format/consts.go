// Package format describes the on-arena layout of allocator blocks. The goal is
// to keep header encoding in one place, bounds-checked and independent from the
// allocator logic so higher-level packages never cast raw memory.
package format

// State is the tag stored in every block header.
type State uint8

const (
	// StateFree marks a block that is linked into the free list.
	StateFree State = 0xF5

	// StateAllocated marks a block handed out to a caller.
	StateAllocated State = 0xA5
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateAllocated:
		return "allocated"
	default:
		return "invalid"
	}
}

// Valid reports whether s is one of the two known tags.
func (s State) Valid() bool {
	return s == StateFree || s == StateAllocated
}

const (
	// Block header layout (little-endian):
	//   0x00  next   uint32  offset of the next free-list block, NoBlock if none
	//   0x04  size   uint32  payload capacity in bytes
	//   0x08  state  uint8   StateFree / StateAllocated
	NextOffset  = 0x00
	SizeOffset  = 0x04
	StateOffset = 0x08

	// HeaderFieldsSize is the number of meaningful header bytes. The stored
	// header is padded up to the arena alignment, see HeaderSize.
	HeaderFieldsSize = 9

	// NoBlock terminates the free list and marks allocated blocks.
	NoBlock = ^uint32(0)

	// MaxAlign is the default payload alignment, matching the strictest
	// alignment any Go or C scalar type needs on supported platforms.
	MaxAlign = 16

	// MinAlign and MaxAlignLimit bound configurable alignments.
	MinAlign      = 8
	MaxAlignLimit = 4096

	// MaxArenaSize is the largest arena addressable with uint32 offsets.
	// NoBlock is reserved, so the last usable byte sits one below it. Kept
	// as int64 so the constant fits on 32-bit platforms.
	MaxArenaSize int64 = int64(NoBlock) - 1
)
