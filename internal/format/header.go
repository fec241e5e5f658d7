package format

import "fmt"

// Header is the decoded form of a block header.
type Header struct {
	Next  uint32
	Size  uint32
	State State
}

// ReadHeader decodes the header at off. It fails instead of panicking when the
// header would extend past b.
func ReadHeader(b []byte, off int) (Header, error) {
	if off < 0 || off+HeaderFieldsSize > len(b) {
		return Header{}, fmt.Errorf("%w: header at 0x%X, buffer %d bytes", ErrTruncated, off, len(b))
	}
	return Header{
		Next:  ReadU32(b, off+NextOffset),
		Size:  ReadU32(b, off+SizeOffset),
		State: State(b[off+StateOffset]),
	}, nil
}

// WriteHeader encodes h at off. Callers guarantee off is in range.
func WriteHeader(b []byte, off int, h Header) {
	PutU32(b, off+NextOffset, h.Next)
	PutU32(b, off+SizeOffset, h.Size)
	b[off+StateOffset] = byte(h.State)
}

// Next returns the free-list link of the header at off.
func Next(b []byte, off int) uint32 { return ReadU32(b, off+NextOffset) }

// Size returns the payload capacity of the header at off.
func Size(b []byte, off int) uint32 { return ReadU32(b, off+SizeOffset) }

// StateAt returns the state tag of the header at off.
func StateAt(b []byte, off int) State { return State(b[off+StateOffset]) }

// SetNext updates the free-list link of the header at off.
func SetNext(b []byte, off int, next uint32) { PutU32(b, off+NextOffset, next) }

// SetSize updates the payload capacity of the header at off.
func SetSize(b []byte, off int, size uint32) { PutU32(b, off+SizeOffset, size) }

// SetState updates the state tag of the header at off.
func SetState(b []byte, off int, s State) { b[off+StateOffset] = byte(s) }
