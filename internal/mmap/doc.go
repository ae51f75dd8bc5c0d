// Package mmap provides anonymous memory mappings used as off-heap slab
// storage for the size-class pools.
//
// # Overview
//
// Pool slabs that live outside the Go heap are never scanned by the garbage
// collector, which keeps GC pause times independent of the amount of undo
// payload a partition holds. Only pointer-free data may be stored in them.
//
// # Usage
//
//	m, err := mmap.MapAnon(2 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	slab := m.Bytes()
//	m.Advise(mmap.AccessDontNeed) // hand pages back without unmapping
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2)
//   - Windows: VirtualAlloc / VirtualFree (Advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and guarded by an atomic flag. Callers must not touch
// Bytes() after Close returns.
package mmap
