// Package undo implements per-transaction undo logging on top of arena memory.
//
// # Quanta
//
// An UndoQuantum is the undo scope of one transaction. Engine code carves
// before-images and other undo payloads from the quantum with Allocate, then
// registers an Action describing how to reverse (Undo) or finalize (Release)
// the mutation. At transaction end exactly one of two things happens:
//
//   - Commit calls Release on every action, oldest first.
//   - Rollback calls Undo on every action, newest first.
//
// Each action is finalized exactly once. An action that also implements
// Destroyer has Destroy called right after, before the arena is purged. The
// quantum then purges its arena in one step, which invalidates every Handle
// and every payload slice it handed out, and notifies release interests.
// A terminal quantum rejects further use with a panic carrying a
// *ContractViolation.
//
// # Dummy Quantum
//
// DummyQuantum serves callers that need no rollback. Register releases and
// destroys the action and purges the arena before returning.
//
// # Log
//
// Log orders quanta by token the way an execution site hands out undo
// tokens: Generate opens a quantum, Undo(token) rolls back every quantum at
// or above token, Release(token) commits every quantum at or below it.
// Arenas of finished quanta are purged and kept for reuse.
//
// # Replication
//
// Actions on replicated tables implement ReplicatedTableAware. When a
// quantum with a Coordinator finalizes such an action, the coordinator
// decides when the finalization runs. The replication flag is read from the
// live table on every query.
//
// # Confinement
//
// Quanta and logs belong to one partition goroutine. Nothing here locks.
package undo
