package api

import "unsafe"

// Mallocer interface for fixed-size custom memory allocators.
type Mallocer interface {
	// Alloc one block from allocator. Allocated memory is always
	// 64-bit aligned. Returns false when the allocator is exhausted,
	// callers are expected to check and recover.
	Alloc() (ptr unsafe.Pointer, ok bool)

	// Free a block back to the allocator. `ptr` shall be a pointer
	// previously obtained from the same allocator's Alloc, freed
	// exactly once.
	Free(ptr unsafe.Pointer)

	// Slabsize return the usable size, in bytes, of allocated blocks.
	Slabsize() int64

	// Allocated return number of bytes currently allocated to the
	// application.
	Allocated() int64

	// Available return number of bytes free with the allocator.
	Available() int64

	// Info of memory accounting for this allocator, all in bytes.
	// `capacity` is memory the allocator can hand out, `heap` is
	// memory reserved from the underlying source, `alloc` is memory
	// handed out to the application and `overhead` is book-keeping
	// cost.
	Info() (capacity, heap, alloc, overhead int64)

	// Release the allocator and all its resources. Blocks still held
	// by the application become invalid, it is the caller's
	// responsibility to finalize them before releasing.
	Release()
}
