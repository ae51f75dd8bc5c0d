// Package resource implements a process-wide memory budget shared by every
// partition's size-class pools.
//
// Partitions allocate without locks, but each slab they map is reserved
// against one Controller first. When the budget is exhausted the reservation
// fails immediately (it never blocks) and the requesting allocation surfaces
// an out-of-memory error; the engine then aborts the in-flight transaction.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	if err := rc.AcquireMemory(2 << 20); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(2 << 20)
//
// A nil *Controller is valid and tracks nothing.
package resource
