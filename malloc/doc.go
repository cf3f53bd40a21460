// Package malloc supplies manual memory allocators for latency
// sensitive code paths, with a limited scope:
//
//   - Allocation and deallocation are O(1), there is no fragmentation
//     search and no hidden heap traffic on the hot path.
//   - Pool is a fixed capacity allocator of same-sized cells, reusing
//     freed cells through a free-list threaded inside the cells
//     themselves.
//   - Poolchain composes pools into a growing chain when the required
//     capacity is not known up front, caching one empty chunk to
//     absorb load oscillating around a chunk boundary.
//   - Stack is a linear allocator over one contiguous buffer with
//     marker based bulk rollback, growing downward or upward.
//     Dualstack packs two stacks growing toward each other inside one
//     buffer.
//   - Pool and Poolchain instances are single threaded unless created
//     with "multithreaded" settings, in which case pool allocation is
//     lock-free and chain mutation is guarded by a reader/writer
//     spin-lock. Stack and Dualstack are always single threaded.
//   - Memory handed out by this package is always 64-bit aligned.
//   - There is no pointer re-write and allocator memory is not
//     scanned by the garbage collector. Values placed into allocator
//     memory must not hold the only reference to objects on the Go
//     heap.
//
// Exhaustion is a recoverable condition, reported as a false ok from
// Alloc/Create. Freeing a pointer the allocator does not own, freeing
// twice, or overflowing a stack's capacity are contract violations;
// stack overflow always panics, pointer checks are enabled with the
// `debug` build tag.
package malloc
