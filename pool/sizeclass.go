package pool

import (
	"fmt"
	"math/bits"
)

// MaxPooledSize is the largest size SizeClass will round to.
const MaxPooledSize = 1 << 20

// SizeClass rounds n up to the size class used for variable-length requests.
//
// The class is the next power of two, shrunk to three quarters of it when n
// fits, so over-allocation stays under 50% while the number of distinct pools
// stays logarithmic in the size range.
func SizeClass(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidSize
	}
	if n > MaxPooledSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, n, MaxPooledSize)
	}
	if n <= blockAlign {
		return blockAlign, nil
	}

	target := 1 << bits.Len(uint(n-1))
	if threeQuarters := target - target>>2; n <= threeQuarters {
		target = threeQuarters
	}
	return target, nil
}
