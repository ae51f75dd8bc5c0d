package mem

import (
	"unsafe"
)

// CacheLine is the alignment used for slab bases so that neighbouring slabs
// never share a cache line.
const CacheLine = 64

// AllocAligned allocates a zeroed byte slice of the given size whose first
// byte sits at an address divisible by align. align must be a power of two.
//
// The backing array is slightly larger than size; it is kept alive by the
// returned slice.
func AllocAligned(size, align int) []byte {
	if size <= 0 {
		return nil
	}
	if align <= 1 {
		return make([]byte, size)
	}

	buf := make([]byte, size+align)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // address arithmetic only
	mask := uintptr(align - 1)
	offset := (uintptr(align) - (addr & mask)) & mask

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// AlignUp rounds n up to the next multiple of align (a power of two).
func AlignUp(n, align int) int {
	mask := align - 1
	return (n + mask) &^ mask
}

// Addr returns the address of the first byte of b, or 0 for an empty slice.
func Addr(b []byte) uintptr {
	if cap(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))) //nolint:gosec // address arithmetic only
}
