package malloc

import "unsafe"

import "github.com/bnclabs/goalloc/api"

// Create allocate a cell from `m` and place `value` in it. Returns
// false when the allocator is exhausted. T shall fit within the
// allocator's Slabsize() and shall not hold the only reference to
// objects on the Go heap, allocator memory is not scanned by the
// garbage collector.
func Create[T any](m api.Mallocer, value T) (*T, bool) {
	if size := int64(unsafe.Sizeof(value)); size > m.Slabsize() {
		panicerr("create size %v exceeds slab size %v", size, m.Slabsize())
	}
	ptr, ok := m.Alloc()
	if !ok {
		return nil, false
	}
	obj := (*T)(ptr)
	*obj = value
	return obj, true
}

// Destroy finalize `value` and free its cell back to `m`. The
// finalize callback, if not nil, stands in for a destructor: use it
// to release resources the value holds. Passing a pointer not
// obtained from `m`'s Create/Alloc, or destroying twice, is a
// contract violation.
func Destroy[T any](m api.Mallocer, value *T, finalize func(*T)) {
	if finalize != nil {
		finalize(value)
	}
	m.Free(unsafe.Pointer(value))
}
