package pool

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Allocator hands out typed element runs from a Registry, for free-list and
// vector style containers that manage their own element lifetimes.
//
// A run of one element comes from the pool keyed by the element size; a run
// of n elements comes from the pool keyed by n times the element size, as a
// single block. Containers ask for few distinct run lengths, so the pool
// catalog stays small.
//
// T must not contain Go pointers.
type Allocator[T any] struct {
	reg      *Registry
	elemSize int
}

// NewAllocator returns an Allocator for T backed by reg.
func NewAllocator[T any](reg *Registry) (Allocator[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if hasPointers(typ) {
		return Allocator[T]{}, fmt.Errorf("%w: %s", ErrPointerType, typ)
	}
	size := int(typ.Size())
	if size == 0 {
		return Allocator[T]{}, fmt.Errorf("%w: zero-sized element %s", ErrInvalidSize, typ)
	}
	return Allocator[T]{reg: reg, elemSize: size}, nil
}

// ElemSize returns the size of one element in bytes.
func (a Allocator[T]) ElemSize() int { return a.elemSize }

// Allocate returns a zeroed run of count elements. A count of zero (or less)
// returns nil without touching any pool.
func (a Allocator[T]) Allocate(count int) ([]T, error) {
	if count <= 0 {
		return nil, nil
	}
	b, err := a.reg.Allocate(a.elemSize * count)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), count), nil //nolint:gosec // block is stride aligned and pointer free
}

// Deallocate returns a run previously obtained with Allocate(count).
func (a Allocator[T]) Deallocate(s []T, count int) {
	if count <= 0 || cap(s) == 0 {
		return
	}
	n := a.elemSize * count
	b := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), n) //nolint:gosec // same block Allocate returned
	a.reg.Deallocate(n, b)
}

// Construct stores v at p.
func (a Allocator[T]) Construct(p *T, v T) {
	*p = v
}

// Destroy resets the element at p to its zero value.
func (a Allocator[T]) Destroy(p *T) {
	var zero T
	*p = zero
}

// Equal reports whether memory from a can be returned through b.
func (a Allocator[T]) Equal(b Allocator[T]) bool {
	return a.reg == b.reg
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
