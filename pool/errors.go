package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when a pool cannot obtain another slab.
	ErrOutOfMemory = errors.New("pool: out of memory")
	// ErrTooLarge is returned by SizeClass for sizes above MaxPooledSize.
	ErrTooLarge = errors.New("pool: allocation too large")
	// ErrInvalidSize is returned for non-positive block sizes.
	ErrInvalidSize = errors.New("pool: invalid size")
	// ErrPointerType is returned by NewAllocator for element types holding Go pointers.
	ErrPointerType = errors.New("pool: element type contains pointers")
	// ErrLeakedBlocks is returned when a pool is released with live blocks.
	ErrLeakedBlocks = errors.New("pool: leaked blocks")
	// ErrClosed is returned when allocating from a released pool or closed registry.
	ErrClosed = errors.New("pool: closed")
)

// ContractViolation reports caller misuse, such as freeing a block twice.
// It is raised with panic: the allocator state can no longer be trusted.
type ContractViolation struct {
	Op     string
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("pool: %s: %s", e.Op, e.Reason)
}

func violate(op, format string, args ...any) {
	panic(&ContractViolation{Op: op, Reason: fmt.Sprintf(format, args...)})
}
