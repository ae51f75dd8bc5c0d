// Package undolog provides per-transaction undo logging for in-memory
// storage engines.
//
// A Partition bundles everything one execution site needs to undo work:
// a memory budget, size-class pools confined to the partition, and an undo
// log whose quanta carve payloads from arenas backed by those pools.
//
// # Quick Start
//
//	p, _ := undolog.NewPartition(0, undolog.WithMemoryLimit(256<<20))
//	defer p.Close()
//
//	q, _ := p.Begin(1)
//	before, _ := q.Allocate(len(row))
//	copy(before, row)
//	q.Register(&undo.FuncAction{
//	    OnUndo: func() { copy(row, before) },
//	}, nil)
//
//	p.Undo(1)    // roll back: row is restored
//	// or
//	p.Release(1) // commit: undo data is discarded
//
// # Ordering
//
// Commit releases actions oldest first; rollback undoes them newest first.
// Each action is finalized exactly once, then the quantum's arena is purged
// in one step and handles into it go stale.
//
// # Confinement
//
// A Partition is owned by one goroutine at a time. It takes no locks. Use
// NewContext and FromContext to carry the partition through call chains
// instead of a goroutine-local table.
//
// # Out of Memory
//
// Allocation failures surface as errors matching ErrOutOfMemory. They are
// fatal to the transaction in flight: abandon it with Undo.
package undolog
