package format

import "unsafe"

// AlignUp returns n aligned up to the next multiple of align.
// align must be a power of two.
//
// Example:
//
//	AlignUp(1, 16)  = 16
//	AlignUp(16, 16) = 16
//	AlignUp(17, 16) = 32
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// AlignDown returns n aligned down to a multiple of align.
func AlignDown(n, align int) int {
	return n &^ (align - 1)
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// HeaderSize returns the stored header size for the given alignment. Padding
// the header keeps every payload aligned whenever its header is.
func HeaderSize(align int) int {
	return AlignUp(HeaderFieldsSize, align)
}

// Addr returns the address of b[off]. b must be non-empty and off < len(b).
func Addr(b []byte, off int) uintptr {
	return uintptr(unsafe.Pointer(&b[off]))
}

// AlignedStart returns the smallest offset whose address in b is a multiple
// of align, or len(b) when no such offset exists inside b.
func AlignedStart(b []byte, align int) int {
	if len(b) == 0 {
		return 0
	}
	addr := Addr(b, 0)
	mask := uintptr(align - 1)
	pad := int((uintptr(align) - addr&mask) & mask)
	if pad > len(b) {
		return len(b)
	}
	return pad
}
