// Package arena provides a chunked bump allocator with O(1) bulk reclaim.
//
// An Arena belongs to one undo quantum at a time. Undo payloads (row
// before-images, index keys, counters) are carved from it while a
// transaction runs, and the whole arena is purged in one step when the
// transaction commits or rolls back. Per-allocation frees never happen.
//
// # Chunks
//
// Memory comes from a ChunkSource in chunks of the configured chunk size
// (DefaultChunkSize, or UndoChunkSize for undo-scoped arenas). A request
// larger than the chunk size gets a dedicated chunk of exactly its aligned
// size. Purge keeps the first RetainedChunks standard chunks and rewinds the
// cursor to the first of them, so the next transaction reuses that capacity
// without asking the source again.
//
// # References
//
// Allocate returns a Ref next to the bytes. A Ref carries the arena
// generation, which every Purge advances; Bytes returns nil for a Ref taken
// before the last purge instead of aliasing memory now owned by someone else.
//
// # Concurrency
//
// None. An arena is confined to its owning partition.
package arena
