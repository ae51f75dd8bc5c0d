// Package pool implements size-class pools: allocators that serve fixed-size
// blocks of exactly one byte size, and the per-partition Registry that maps a
// size to its pool.
//
// # Thread Confinement
//
// A Registry and every Pool it creates belong to one partition, which runs
// on one goroutine at a time. Nothing in this package takes a lock. Two
// registries never share a pool, so two partitions asking for the same size
// get distinct pools and never contend.
//
// # Slabs
//
// Pools obtain memory in slabs. The first slab of a pool holds 32 blocks and
// each following slab doubles, capped at MaxSlabBytes (2 MiB). Blocks of
// LargeBlockSize (256 KiB) or more get two blocks per slab. Slabs are never
// handed back individually; they are released with the pool.
//
// Slabs live on the Go heap by default, or in anonymous mappings when the
// registry is created WithOffHeap. In both cases the collector does not scan
// block contents, so blocks must never hold Go pointers. Allocator[T]
// enforces this for typed use.
//
// # Budget
//
// Every slab is reserved against a resource.Controller before it is mapped.
// A refused reservation, or a pool that already holds MaxSlabs slabs, yields
// an error wrapping ErrOutOfMemory.
//
// # Checking
//
// WithChecking records every live block in a roaring bitmap. Freeing a block
// twice or freeing memory the pool never handed out panics with a
// *ContractViolation in all modes; checking mode additionally names the
// leaked blocks when a pool is released with allocations outstanding.
package pool
